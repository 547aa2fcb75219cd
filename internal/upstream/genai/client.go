package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	observer   ObserverFunc
}

// Kind classifies an upstream failure once, at this layer, so callers never
// have to sniff error text.
type Kind string

const (
	// KindNotFound means the requested model does not exist or is not
	// supported; the call chain may substitute the next candidate.
	KindNotFound Kind = "not_found"
	// KindInvalidInput means the backend rejected the payload (for example a
	// broken image); retrying with the same payload is pointless.
	KindInvalidInput Kind = "invalid_input"
	// KindUnauthorized means a missing or bad credential; fatal until
	// configuration changes.
	KindUnauthorized Kind = "unauthorized"
	// KindTransient covers everything else: rate limits, 5xx, timeouts.
	KindTransient Kind = "transient"
)

type Error struct {
	Kind       Kind
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request failed (%s)", e.Kind)
	}
	return fmt.Sprintf("upstream request failed with status %d (%s)", e.StatusCode, e.Kind)
}

// IsKind reports whether err is an upstream *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var upErr *Error
	return errors.As(err, &upErr) && upErr.Kind == kind
}

// Attachment is an inline binary part (image or audio) sent with a prompt.
type Attachment struct {
	MIMEType string
	Data     string // base64, no data-URL prefix
}

// GenerationRequest is immutable once built; pipelines construct one per call.
type GenerationRequest struct {
	Prompt      string
	Attachment  *Attachment
	Temperature float64
	StrictJSON  bool
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL, apiKey string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type wireRequest struct {
	Contents         []wireContent        `json:"contents"`
	GenerationConfig wireGenerationConfig `json:"generationConfig"`
}

// GenerateContent executes one generation call against the named model and
// returns the concatenated text parts of the first candidate.
func (c *Client) GenerateContent(ctx context.Context, model string, genReq GenerationRequest) (string, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("generate_content", statusCode, time.Since(started)) }()

	apiKey := c.resolveAPIKey(ctx)
	if apiKey == "" {
		return "", &Error{Kind: KindUnauthorized, Body: "missing API key"}
	}

	parts := []wirePart{{Text: genReq.Prompt}}
	if genReq.Attachment != nil {
		parts = append(parts, wirePart{InlineData: &wireInlineData{
			MIMEType: genReq.Attachment.MIMEType,
			Data:     genReq.Attachment.Data,
		}})
	}
	wireReq := wireRequest{
		Contents:         []wireContent{{Parts: parts}},
		GenerationConfig: wireGenerationConfig{Temperature: genReq.Temperature},
	}
	if genReq.StrictJSON {
		wireReq.GenerationConfig.ResponseMIMEType = "application/json"
	}

	payload, err := json.Marshal(wireReq)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Kind:       classifyStatus(resp.StatusCode, string(respBody)),
			StatusCode: resp.StatusCode,
			Body:       truncateBody(string(respBody)),
		}
	}

	return parseCandidateText(respBody)
}

// CheckModels probes the model listing endpoint, used for readiness.
func (c *Client) CheckModels(ctx context.Context) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("models", statusCode, time.Since(started)) }()

	apiKey := c.resolveAPIKey(ctx)
	if apiKey == "" {
		return &Error{Kind: KindUnauthorized, Body: "missing API key"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &Error{
			Kind:       classifyStatus(resp.StatusCode, string(body)),
			StatusCode: resp.StatusCode,
			Body:       truncateBody(string(body)),
		}
	}
	return nil
}

func (c *Client) resolveAPIKey(ctx context.Context) string {
	if key := RequestAPIKeyFromContext(ctx); key != "" {
		return key
	}
	return c.apiKey
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func classifyStatus(status int, body string) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusBadRequest:
		// The backend reports unknown model names as 400 INVALID_ARGUMENT in
		// some API versions; treat those as not-found so the chain advances.
		lower := strings.ToLower(body)
		if strings.Contains(lower, "is not found") || strings.Contains(lower, "not supported") {
			return KindNotFound
		}
		return KindInvalidInput
	default:
		return KindTransient
	}
}

func parseCandidateText(data []byte) (string, error) {
	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback *struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("invalid generation response: %w", err)
	}
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", &Error{Kind: KindInvalidInput, Body: "prompt blocked: " + parsed.PromptFeedback.BlockReason}
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("missing candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("missing candidates[0].content.parts text")
	}
	return text, nil
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
