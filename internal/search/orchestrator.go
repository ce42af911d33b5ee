// Package search is the entry point for influencer search requests.
//
// The orchestrator decides between the cache and the live discovery API,
// aggregates multi-page live fetches, and triggers best-effort cache
// write-back. Every failure is converted into a result envelope here;
// no error from this package crosses into the HTTP layer as anything
// but {success:false, message}.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/influencer"
	"github.com/finderhq/influencer-finder/internal/keystore"
	"github.com/finderhq/influencer-finder/internal/metrics"
)

// PageFetcher fetches one normalized discovery page.
type PageFetcher interface {
	FetchPage(ctx context.Context, filter influencer.Filter, apiKey string) (influencer.Page, error)
}

// CacheStore is the hierarchical influencer cache consumed by the
// orchestrator.
type CacheStore interface {
	Upsert(ctx context.Context, city, platform string, records []influencer.Influencer) (bool, error)
	ReadPartition(ctx context.Context, city, platform string) ([]influencer.Influencer, error)
	ListPlatforms(ctx context.Context, city string) ([]string, error)
}

// CredentialSource resolves the API key for the discovery service.
type CredentialSource interface {
	GetActiveKey(ctx context.Context, serviceName string) (*keystore.APIKey, error)
	MarkUsed(id string)
}

// Result is the single-page search envelope returned to callers.
type Result struct {
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	Results     []influencer.Influencer `json:"results"`
	TotalPages  int                     `json:"totalPages"`
	CurrentPage int                     `json:"currentPage"`
}

// AggregateResult is the multi-page ("search all") envelope. Partial is
// set when at least one page was skipped; Success is false only when no
// page at all could be fetched.
type AggregateResult struct {
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	Results     []influencer.Influencer `json:"results"`
	Partial     bool                    `json:"partial"`
	Pages       int                     `json:"pages"`
	FailedPages int                     `json:"failedPages"`
}

// CachedResult is the cached-read envelope.
type CachedResult struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Results []influencer.Influencer `json:"results"`
}

// Config tunes the orchestrator.
type Config struct {
	// ServiceName identifies the credential row for the discovery API.
	ServiceName string
	// MaxPages bounds the search-all page sequence.
	MaxPages int
	// PageDelay is the fixed pacing delay between search-all pages,
	// matching the provider's rate-limit guidance (2s when unset). It
	// applies regardless of whether the prior page succeeded and is
	// interruptible by the caller's context.
	PageDelay time.Duration
	// CacheWriteTimeout bounds a detached write-back.
	CacheWriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "ylytic"
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 5
	}
	if c.PageDelay <= 0 {
		c.PageDelay = 2 * time.Second
	}
	if c.CacheWriteTimeout <= 0 {
		c.CacheWriteTimeout = 10 * time.Second
	}
	return c
}

// Orchestrator fulfils search requests.
type Orchestrator struct {
	fetcher PageFetcher
	cache   CacheStore
	creds   CredentialSource
	cfg     Config
	logger  *zap.Logger

	// background joins detached cache write-backs, mostly so tests and
	// graceful shutdown can wait for them.
	background sync.WaitGroup
}

// New constructs an Orchestrator.
func New(fetcher PageFetcher, cache CacheStore, creds CredentialSource, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher: fetcher,
		cache:   cache,
		creds:   creds,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Wait blocks until all detached cache write-backs have finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// Search performs one live page fetch. With a concrete city and
// platform in the filter, the fetched records are written back to the
// cache on a detached goroutine whose outcome never affects the result.
func (o *Orchestrator) Search(ctx context.Context, filter influencer.Filter) Result {
	page := filter.Page
	if page < 1 {
		page = 1
		filter.Page = 1
	}

	key, err := o.activeKey(ctx)
	if err != nil {
		metrics.ObserveSearch("single", "error")
		return Result{Success: false, Message: err.Error(), Results: []influencer.Influencer{}, CurrentPage: page}
	}

	fetched, err := o.fetcher.FetchPage(ctx, filter, key.KeyValue)
	if err != nil {
		metrics.ObserveDiscoveryPage("error")
		metrics.ObserveSearch("single", "error")
		return Result{Success: false, Message: err.Error(), Results: []influencer.Influencer{}, CurrentPage: page}
	}
	metrics.ObserveDiscoveryPage("success")

	if len(fetched.Records) > 0 && filter.HasCity() && filter.HasPlatform() {
		o.writeBack(filter.City, filter.Platform, fetched.Records)
	}

	metrics.ObserveSearch("single", "success")
	return Result{
		Success:     true,
		Message:     "Search successful.",
		Results:     fetched.Records,
		TotalPages:  fetched.TotalPages,
		CurrentPage: fetched.Number,
	}
}

// SearchAll fetches pages 1..MaxPages in strict sequence, skipping
// failed pages and pacing with the fixed inter-page delay. Cancellation
// is honored between pages and interrupts the delay. Zero successful
// pages flips the envelope to failure so a total outage is visible to
// the caller.
func (o *Orchestrator) SearchAll(ctx context.Context, filter influencer.Filter) AggregateResult {
	key, err := o.activeKey(ctx)
	if err != nil {
		metrics.ObserveSearch("all", "error")
		return AggregateResult{Success: false, Message: err.Error(), Results: []influencer.Influencer{}}
	}

	var (
		results     []influencer.Influencer
		fetchedOK   int
		failedPages int
	)

	for page := 1; page <= o.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		if page > 1 {
			if err := o.pause(ctx); err != nil {
				break
			}
		}

		filter.Page = page
		fetched, err := o.fetcher.FetchPage(ctx, filter, key.KeyValue)
		if err != nil {
			metrics.ObserveDiscoveryPage("error")
			failedPages++
			o.logger.Warn("search-all page skipped",
				zap.Int("page", page),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveDiscoveryPage("success")
		fetchedOK++
		results = append(results, fetched.Records...)
		if fetched.TotalPages <= page {
			break
		}
	}

	// Consecutive pages can overlap when the provider reshuffles its
	// ranking mid-walk; collapse duplicates before the envelope is built.
	results = influencer.Dedupe(results)
	if results == nil {
		results = []influencer.Influencer{}
	}

	if fetchedOK == 0 {
		metrics.ObserveSearch("all", "error")
		return AggregateResult{
			Success:     false,
			Message:     "All discovery pages failed.",
			Results:     results,
			Partial:     failedPages > 0,
			FailedPages: failedPages,
		}
	}

	status := "success"
	if failedPages > 0 {
		status = "partial"
	}
	metrics.ObserveSearch("all", status)
	return AggregateResult{
		Success:     true,
		Message:     fmt.Sprintf("Fetched %d page(s).", fetchedOK),
		Results:     results,
		Partial:     failedPages > 0,
		Pages:       fetchedOK,
		FailedPages: failedPages,
	}
}

// Cached serves a read purely from the cache; the external API is never
// consulted. A missing partition is an empty success. When no platform
// is given, every platform known for the city is concatenated.
func (o *Orchestrator) Cached(ctx context.Context, city, platform string) CachedResult {
	if city == "" || city == influencer.AnyCity {
		metrics.ObserveSearch("cached", "error")
		return CachedResult{Success: false, Message: "A concrete city is required for cached reads.", Results: []influencer.Influencer{}}
	}

	platforms := []string{platform}
	if platform == "" || platform == influencer.AnyPlatform {
		known, err := o.cache.ListPlatforms(ctx, city)
		if err != nil {
			metrics.ObserveCacheRead("error")
			metrics.ObserveSearch("cached", "error")
			o.logger.Error("list cached platforms", zap.String("city", city), zap.Error(err))
			return CachedResult{Success: false, Message: "Failed to fetch cached influencers.", Results: []influencer.Influencer{}}
		}
		platforms = known
	}

	results := []influencer.Influencer{}
	for _, p := range platforms {
		records, err := o.cache.ReadPartition(ctx, city, p)
		if err != nil {
			metrics.ObserveCacheRead("error")
			metrics.ObserveSearch("cached", "error")
			o.logger.Error("cached read failed",
				zap.String("city", city),
				zap.String("platform", p),
				zap.Error(err),
			)
			return CachedResult{Success: false, Message: "Failed to fetch cached influencers.", Results: []influencer.Influencer{}}
		}
		results = append(results, records...)
	}

	if len(results) == 0 {
		metrics.ObserveCacheRead("miss")
	} else {
		metrics.ObserveCacheRead("hit")
	}
	metrics.ObserveSearch("cached", "success")
	return CachedResult{Success: true, Message: "Successfully fetched cached influencers.", Results: results}
}

// activeKey resolves the discovery credential, failing fast before any
// network traffic when none is configured. The last-used update is
// fire-and-forget inside the keystore.
func (o *Orchestrator) activeKey(ctx context.Context) (*keystore.APIKey, error) {
	key, err := o.creds.GetActiveKey(ctx, o.cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("look up API key: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("no active API key configured for service %q", o.cfg.ServiceName)
	}
	o.creds.MarkUsed(key.ID)
	o.logger.Debug("using discovery credential", zap.String("fingerprint", key.Fingerprint()))
	return key, nil
}

// writeBack persists a page of records into the cache on a detached
// goroutine. Freshness of the cache is secondary to responsiveness of
// the search: failures are logged and swallowed.
func (o *Orchestrator) writeBack(city, platform string, records []influencer.Influencer) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CacheWriteTimeout)
		defer cancel()
		if _, err := o.cache.Upsert(ctx, city, platform, records); err != nil {
			metrics.ObserveCacheWrite("error")
			o.logger.Warn("cache write-back failed",
				zap.String("city", city),
				zap.String("platform", platform),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			return
		}
		metrics.ObserveCacheWrite("success")
	}()
}

// pause blocks for the configured inter-page delay or until the context
// is done, whichever comes first.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.cfg.PageDelay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.cfg.PageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
