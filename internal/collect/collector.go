// Package collect implements the per-channel identity probes. Each
// collector is independent and best-effort: any external fault (DNS
// timeout, TLS failure, non-2xx, malformed payload) degrades to "no
// signal" rather than failing the enrichment attempt.
package collect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadtrace/internal/hostname"
	"github.com/sells-group/leadtrace/internal/model"
)

// Target is the per-event context handed to every collector.
type Target struct {
	// IP is the visitor address under investigation.
	IP string

	// Known carries previously enriched company context for the IP, if
	// any (feeds the hostname scorer and host-header candidates).
	Known *hostname.Known

	// Candidates is a ranked list of candidate domains from earlier
	// evidence, consumed by the host-header probe.
	Candidates []string

	// Lat/Lon is the visitor's approximate IP-geolocation; HasLocation
	// distinguishes the zero coordinate from "unavailable".
	Lat, Lon    float64
	HasLocation bool

	// Email is a voluntarily submitted form email, if the event carried
	// one. Ground truth when present.
	Email string
}

// Collector probes one evidentiary channel.
type Collector interface {
	Name() string
	Collect(ctx context.Context, target Target) ([]model.DomainSignal, error)
}

// Runner fans collectors out in parallel with a per-collector timeout.
// There is no shared state between collectors; results are concatenated
// after all finish or time out.
type Runner struct {
	collectors []Collector
	timeout    time.Duration
}

// NewRunner creates a Runner. timeout bounds each collector
// individually; zero means 3 seconds.
func NewRunner(timeout time.Duration, collectors ...Collector) *Runner {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Runner{collectors: collectors, timeout: timeout}
}

// Collect runs every collector and returns whatever signals came back
// within budget. Collector errors are logged, never propagated: a
// failed probe is a channel that didn't vote.
func (r *Runner) Collect(ctx context.Context, target Target) []model.DomainSignal {
	var (
		mu      sync.Mutex
		signals []model.DomainSignal
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, c := range r.collectors {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gCtx, r.timeout)
			defer cancel()

			start := time.Now()
			got, err := c.Collect(probeCtx, target)
			if err != nil {
				zap.L().Debug("collect: probe returned no signal",
					zap.String("collector", c.Name()),
					zap.String("ip", target.IP),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err),
				)
				return nil
			}
			if len(got) > 0 {
				mu.Lock()
				signals = append(signals, got...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Debug("collect: probes complete",
		zap.String("ip", target.IP),
		zap.Int("collectors", len(r.collectors)),
		zap.Int("signals", len(signals)),
	)

	return signals
}
