// Package waittime enriches a batch of facilities with a wait-time estimate
// each: scraped from a known hospital system or the facility's own site when
// possible, otherwise a deterministic synthetic value. Scrape failures are
// logged and absorbed; no facility in a batch is ever dropped or failed.
package waittime

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

type Facility struct {
	Name    string
	Website string
}

// Estimate carries the input facility unchanged plus the two added fields.
// Estimated is true iff the value is synthetic rather than scraped.
type Estimate struct {
	Facility
	WaitMinutes int
	Estimated   bool
}

// Outcome labels how one facility's estimate was obtained, for metrics.
type Outcome string

const (
	OutcomeKnownSystem Outcome = "known_system"
	OutcomeSiteProbe   Outcome = "site_probe"
	OutcomeSynthetic   Outcome = "synthetic"
)

type OutcomeObserver func(outcome Outcome)

type Resolver struct {
	scraper  *Scraper
	logger   *slog.Logger
	timeout  time.Duration
	limit    int
	now      func() time.Time
	observer OutcomeObserver
}

type Option func(*Resolver)

// WithOutcomeObserver registers a per-facility resolution outcome hook.
func WithOutcomeObserver(observer OutcomeObserver) Option {
	return func(r *Resolver) {
		r.observer = observer
	}
}

// WithConcurrencyLimit bounds how many facilities resolve at once.
func WithConcurrencyLimit(limit int) Option {
	return func(r *Resolver) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

func NewResolver(scraper *Scraper, timeout time.Duration, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		scraper: scraper,
		logger:  logger,
		timeout: timeout,
		limit:   8,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve estimates every facility concurrently. The result preserves input
// order and cardinality; a slow or failing facility affects only itself.
func (r *Resolver) Resolve(ctx context.Context, facilities []Facility) []Estimate {
	estimates := make([]Estimate, len(facilities))

	var g errgroup.Group
	g.SetLimit(r.limit)
	for i, facility := range facilities {
		i, facility := i, facility
		g.Go(func() error {
			estimates[i] = r.resolveOne(ctx, facility)
			return nil
		})
	}
	_ = g.Wait()

	return estimates
}

func (r *Resolver) resolveOne(ctx context.Context, facility Facility) Estimate {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if sys := knownSystemFor(facility.Name); sys != nil {
		table, err := r.scraper.systemTable(ctx, sys)
		if err != nil {
			r.logger.Warn("known-system scrape failed",
				"facility", facility.Name, "url", sys.pageURL, "error", err)
		} else if minutes, ok := bestMatch(facility.Name, table); ok {
			r.observe(OutcomeKnownSystem)
			return Estimate{Facility: facility, WaitMinutes: minutes}
		}
	}

	if facility.Website != "" {
		if minutes, ok := r.scraper.probeSite(ctx, facility.Website); ok {
			r.observe(OutcomeSiteProbe)
			return Estimate{Facility: facility, WaitMinutes: minutes}
		}
	}

	r.observe(OutcomeSynthetic)
	return Estimate{
		Facility:    facility,
		WaitMinutes: SyntheticWait(facility.Name, r.now()),
		Estimated:   true,
	}
}

func (r *Resolver) observe(outcome Outcome) {
	if r.observer != nil {
		r.observer(outcome)
	}
}
