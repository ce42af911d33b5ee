package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/influencer"
	"github.com/finderhq/influencer-finder/internal/metrics"
	"github.com/finderhq/influencer-finder/internal/syncjob"
)

func newSyncCmd() *cobra.Command {
	var (
		city     string
		platform string
		category string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refreshes one cached city partition and exits",
		Long: `Walks every discovery page for a city and platform, writes the
results to the cache, and exits. Useful for cron-driven refreshes
without a running server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncCommand(cmd, syncjob.Parameters{
				City:     city,
				Platform: platform,
				Category: category,
			})
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "city to sync (required)")
	cmd.Flags().StringVar(&platform, "platform", "", "platform to sync (required)")
	cmd.Flags().StringVar(&category, "category", "", "optional category filter")
	_ = cmd.MarkFlagRequired("city")
	_ = cmd.MarkFlagRequired("platform")

	return cmd
}

func runSyncCommand(cmd *cobra.Command, params syncjob.Parameters) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger
	ctx := cmd.Context()

	filter := influencer.Filter{City: params.City, Platform: params.Platform, Category: params.Category}
	if !filter.HasCity() {
		return fmt.Errorf("--city must name a concrete city")
	}
	if !filter.HasPlatform() {
		return fmt.Errorf("--platform must name a concrete platform")
	}

	logger.Info("starting one-shot sync",
		zap.String("city", params.City),
		zap.String("platform", params.Platform),
	)

	aggregate := appInstance.Orchestrator.SearchAll(ctx, filter)
	if !aggregate.Success {
		metrics.ObserveSyncJob(string(syncjob.StatusFailed))
		return fmt.Errorf("sync failed: %s", aggregate.Message)
	}

	if len(aggregate.Results) > 0 {
		if _, err := appInstance.Cache.Upsert(ctx, params.City, params.Platform, aggregate.Results); err != nil {
			metrics.ObserveSyncJob(string(syncjob.StatusFailed))
			return fmt.Errorf("cache write: %w", err)
		}
	}

	status := syncjob.StatusSucceeded
	if aggregate.Partial {
		status = syncjob.StatusPartial
	}
	metrics.ObserveSyncJob(string(status))

	logger.Info("sync finished",
		zap.String("status", string(status)),
		zap.Int("pages", aggregate.Pages),
		zap.Int("failed_pages", aggregate.FailedPages),
		zap.Int("influencers", len(aggregate.Results)),
	)
	return nil
}
