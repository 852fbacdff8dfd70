package main

import (
	"context"
	"encoding/csv"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadtrace/internal/enrich"
)

var (
	batchFile  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch resolve visitor IPs from a CSV file or stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnrich(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		var in io.Reader = os.Stdin
		if batchFile != "" {
			f, err := os.Open(batchFile)
			if err != nil {
				return eris.Wrapf(err, "open %s", batchFile)
			}
			defer f.Close()
			in = f
		}

		events, err := readEvents(in)
		if err != nil {
			return err
		}

		return processBatch(ctx, env.Orchestrator, events, batchLimit, cfg.Batch.MaxConcurrentIPs)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "CSV file of events (default stdin)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of events to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// readEvents parses CSV rows of the form ip[,email[,lat,lon]]. A header
// row is detected by a non-parseable first column and skipped. Rows
// without a valid IP are dropped with a warning.
func readEvents(in io.Reader) ([]enrich.Event, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var events []enrich.Event
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read csv")
		}
		if len(row) == 0 {
			continue
		}

		ip := strings.TrimSpace(row[0])
		if net.ParseIP(ip) == nil {
			if len(events) == 0 {
				continue // header row
			}
			zap.L().Warn("skipping row with invalid ip", zap.String("value", ip))
			continue
		}

		ev := enrich.Event{IP: ip}
		if len(row) > 1 {
			ev.Email = strings.TrimSpace(row[1])
		}
		if len(row) > 3 {
			lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
			lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
			if latErr == nil && lonErr == nil {
				ev.Lat, ev.Lon = lat, lon
				ev.HasLocation = true
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// processBatch applies limit, then resolves events concurrently. An
// individual failure never aborts the batch.
func processBatch(ctx context.Context, orch *enrich.Orchestrator, events []enrich.Event, limit, concurrency int) error {
	if len(events) == 0 {
		zap.L().Info("no events to process")
		return nil
	}

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("events", len(events)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var resolved, unresolved, failed atomic.Int64

	for _, ev := range events {
		g.Go(func() error {
			log := zap.L().With(zap.String("ip", ev.IP))

			res, err := orch.Resolve(gctx, ev)
			if err != nil {
				failed.Add(1)
				log.Error("resolve failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			if res.Identity == nil {
				unresolved.Add(1)
				log.Debug("no identity assertable")
				return nil
			}

			resolved.Add(1)
			log.Info("resolved",
				zap.String("domain", res.Identity.Domain),
				zap.Float64("confidence", res.Identity.Confidence),
				zap.Bool("from_cache", res.FromCache),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("resolved", resolved.Load()),
		zap.Int64("unresolved", unresolved.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
