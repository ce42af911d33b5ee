package syncjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/influencer"
	"github.com/finderhq/influencer-finder/internal/metrics"
	"github.com/finderhq/influencer-finder/internal/notify"
	"github.com/finderhq/influencer-finder/internal/search"
)

// Searcher walks every discovery page for a filter.
type Searcher interface {
	SearchAll(ctx context.Context, filter influencer.Filter) search.AggregateResult
}

// CacheWriter persists a refreshed partition.
type CacheWriter interface {
	Upsert(ctx context.Context, city, platform string, records []influencer.Influencer) (bool, error)
}

// Worker executes queued sync jobs one at a time.
type Worker struct {
	queue    *Queue
	store    *Store
	searcher Searcher
	cache    CacheWriter
	notifier notify.Provider
	logger   *zap.Logger
}

// NewWorker wires a worker to its collaborators.
func NewWorker(queue *Queue, store *Store, searcher Searcher, cache CacheWriter, notifier notify.Provider, logger *zap.Logger) *Worker {
	return &Worker{
		queue:    queue,
		store:    store,
		searcher: searcher,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
	}
}

// Submit validates the parameters, persists a queued job, and enqueues
// it for the run loop. A sync must target one concrete partition, so
// sentinel values are rejected up front.
func (w *Worker) Submit(ctx context.Context, params Parameters) (Job, error) {
	filter := influencer.Filter{City: params.City, Platform: params.Platform}
	if !filter.HasCity() {
		return Job{}, errors.New("sync requires a concrete city")
	}
	if !filter.HasPlatform() {
		return Job{}, errors.New("sync requires a concrete platform")
	}

	job := Job{
		ID:         uuid.NewString(),
		Status:     StatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	}
	if err := w.store.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create sync job: %w", err)
	}
	if err := w.queue.Enqueue(ctx, job.ID); err != nil {
		_ = w.store.UpdateStatus(ctx, job.ID, StatusFailed, "enqueue failed", Counters{})
		return Job{}, fmt.Errorf("enqueue sync job: %w", err)
	}
	return job, nil
}

// Run processes jobs until the context is canceled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		jobID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.runJob(ctx, jobID)
	}
}

func (w *Worker) runJob(ctx context.Context, jobID string) {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		w.logger.Error("dequeued unknown sync job", zap.String("job_id", jobID))
		return
	}

	if err := w.store.UpdateStatus(ctx, jobID, StatusRunning, "", Counters{}); err != nil {
		w.logger.Error("failed to mark sync job running", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	filter := influencer.Filter{
		City:     job.Parameters.City,
		Platform: job.Parameters.Platform,
		Category: job.Parameters.Category,
	}
	aggregate := w.searcher.SearchAll(ctx, filter)
	counters := Counters{
		PagesFetched: aggregate.Pages,
		PagesFailed:  aggregate.FailedPages,
		Influencers:  len(aggregate.Results),
	}

	status := StatusSucceeded
	errText := ""
	switch {
	case !aggregate.Success:
		status = StatusFailed
		errText = aggregate.Message
	case aggregate.Partial:
		status = StatusPartial
	}

	// Unlike interactive searches, a sync waits for the cache write:
	// the whole point of the job is a refreshed partition.
	if aggregate.Success && len(aggregate.Results) > 0 {
		if _, err := w.cache.Upsert(ctx, job.Parameters.City, job.Parameters.Platform, aggregate.Results); err != nil {
			status = StatusFailed
			errText = fmt.Sprintf("cache write failed: %v", err)
			w.logger.Error("sync cache write failed",
				zap.String("job_id", jobID),
				zap.String("city", job.Parameters.City),
				zap.Error(err),
			)
		}
	}

	if err := w.store.UpdateStatus(ctx, jobID, status, errText, counters); err != nil {
		w.logger.Error("failed to finalize sync job", zap.String("job_id", jobID), zap.Error(err))
	}
	metrics.ObserveSyncJob(string(status))

	event := notify.Event{
		JobID:       jobID,
		City:        job.Parameters.City,
		Platform:    job.Parameters.Platform,
		Status:      string(status),
		Influencers: counters.Influencers,
	}
	if err := w.notifier.Publish(ctx, event); err != nil {
		w.logger.Warn("failed to publish sync event", zap.String("job_id", jobID), zap.Error(err))
	}

	w.logger.Info("sync job finished",
		zap.String("job_id", jobID),
		zap.String("city", job.Parameters.City),
		zap.String("platform", job.Parameters.Platform),
		zap.String("status", string(status)),
		zap.Int("influencers", counters.Influencers),
	)
}
