package waittime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const maxScrapeBodyBytes = 2 << 20

const plausibleMaxMinutes = 500

// knownSystem is a hospital network with one aggregate wait-time page
// covering multiple facilities.
type knownSystem struct {
	namePattern *regexp.Regexp
	pageURL     string
	marker      string
}

var knownSystems = []knownSystem{
	{
		namePattern: regexp.MustCompile(`(?i)\bpiedmont\b`),
		pageURL:     "https://www.piedmont.org/emergency-room-wait-times/emergency-room-wait-times",
		marker:      "waitTimes",
	},
}

// probePaths are likely wait-time locations tried against a facility's own
// site, in order, when it belongs to no known system.
var probePaths = []string{
	"/wait-times",
	"/er-wait-times",
	"/emergency-room-wait-times",
	"/urgent-care/wait-times",
	"/locations/wait-times",
}

var minutesPattern = regexp.MustCompile(`(?i)(\d{1,3})\s*min(?:ute)?s?\b`)

type Scraper struct {
	httpClient *http.Client
	cache      *Cache
}

func NewScraper(httpClient *http.Client, cache *Cache) *Scraper {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Scraper{httpClient: httpClient, cache: cache}
}

func knownSystemFor(facilityName string) *knownSystem {
	for i := range knownSystems {
		if knownSystems[i].namePattern.MatchString(facilityName) {
			return &knownSystems[i]
		}
	}
	return nil
}

// systemTable returns the known system's name→minutes table, served from the
// shared cache within its TTL.
func (s *Scraper) systemTable(ctx context.Context, sys *knownSystem) (map[string]int, error) {
	if table, ok := s.cache.Get(sys.pageURL); ok {
		return table, nil
	}

	body, err := s.fetch(ctx, sys.pageURL)
	if err != nil {
		return nil, err
	}
	table, err := parseSystemPage(body, sys.marker)
	if err != nil {
		return nil, err
	}

	s.cache.Put(sys.pageURL, table)
	return table, nil
}

// parseSystemPage walks the page's script elements for one containing the
// marker, then decodes the JSON array embedded in it.
func parseSystemPage(body []byte, marker string) (map[string]int, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	script := findMarkedScript(doc, marker)
	if script == "" {
		return nil, fmt.Errorf("marker %q not found in page", marker)
	}

	start := strings.Index(script, "[")
	end := strings.LastIndex(script, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array after marker %q", marker)
	}

	var entries []struct {
		Name        string `json:"name"`
		WaitMinutes int    `json:"waitMinutes"`
	}
	if err := json.Unmarshal([]byte(script[start:end+1]), &entries); err != nil {
		return nil, fmt.Errorf("decode wait-time data: %w", err)
	}

	table := make(map[string]int, len(entries))
	for _, entry := range entries {
		if entry.Name == "" || entry.WaitMinutes < 0 || entry.WaitMinutes >= plausibleMaxMinutes {
			continue
		}
		table[entry.Name] = entry.WaitMinutes
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("wait-time data empty after filtering")
	}
	return table, nil
}

func findMarkedScript(n *html.Node, marker string) string {
	if n.Type == html.ElementNode && n.Data == "script" {
		if n.FirstChild != nil && strings.Contains(n.FirstChild.Data, marker) {
			return n.FirstChild.Data
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findMarkedScript(child, marker); found != "" {
			return found
		}
	}
	return ""
}

// probeSite tries the fixed sub-paths against the site's origin, stopping at
// the first page yielding a plausible minute value.
func (s *Scraper) probeSite(ctx context.Context, website string) (int, bool) {
	origin, err := siteOrigin(website)
	if err != nil {
		return 0, false
	}

	for _, path := range probePaths {
		body, err := s.fetch(ctx, origin+path)
		if err != nil {
			continue
		}
		if minutes, ok := extractMinutes(string(body)); ok {
			return minutes, true
		}
	}
	return 0, false
}

func extractMinutes(body string) (int, bool) {
	match := minutesPattern.FindStringSubmatch(body)
	if match == nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(match[1])
	if err != nil || minutes < 0 || minutes >= plausibleMaxMinutes {
		return 0, false
	}
	return minutes, true
}

func siteOrigin(website string) (string, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return "", fmt.Errorf("empty website")
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	parsed, err := url.Parse(website)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("website %q has no host", website)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "triagekit/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxScrapeBodyBytes))
}
