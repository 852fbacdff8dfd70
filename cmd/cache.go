package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/enrich"
	"github.com/sells-group/leadtrace/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the enrichment cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts per status tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "count by status")
		}

		out := map[string]int{}
		total := 0
		for _, tier := range []model.StatusTier{model.TierEnriched, model.TierPartial, model.TierNone} {
			out[string(tier)] = counts[tier]
			total += counts[tier]
		}
		out["total"] = total

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release expired processing locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.SweepExpiredLocks(ctx, cfg.Enrich.LockTTL())
		if err != nil {
			return eris.Wrap(err, "sweep locks")
		}

		zap.L().Info("sweep complete", zap.Int("released", n))
		return nil
	},
}

var retryLimit int

var cacheRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-attempt records whose backoff window has elapsed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnrich(ctx, "cache")
		if err != nil {
			return err
		}
		defer env.Close()

		due, err := env.Orchestrator.RetryDue(ctx, retryLimit)
		if err != nil {
			return eris.Wrap(err, "list retry due")
		}
		if len(due) == 0 {
			zap.L().Info("no records due for retry")
			return nil
		}

		zap.L().Info("retrying records", zap.Int("due", len(due)))

		events := make([]enrich.Event, 0, len(due))
		for _, rec := range due {
			events = append(events, enrich.Event{IP: rec.IP})
		}
		return processBatch(ctx, env.Orchestrator, events, 0, cfg.Batch.MaxConcurrentIPs)
	},
}

func init() {
	cacheRetryCmd.Flags().IntVar(&retryLimit, "limit", 100, "max records to retry")
	cacheCmd.AddCommand(cacheStatusCmd, cacheSweepCmd, cacheRetryCmd)
	rootCmd.AddCommand(cacheCmd)
}
