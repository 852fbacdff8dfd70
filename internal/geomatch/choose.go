// Package geomatch selects the best business-directory candidate for a
// visitor, preferring domain evidence over geography and owning up to
// genuinely ambiguous near-ties instead of silently picking the first.
package geomatch

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sells-group/leadtrace/internal/model"
)

const (
	earthRadiusM = 6371000.0

	// nearTieRadiusM is the radius within which multiple candidates are
	// considered indistinguishable by geography alone.
	nearTieRadiusM = 2000.0

	confDomainMatch = 0.95
	confRandomTie   = 0.60
	confClosest     = 0.75
)

// Fixed reason tags recorded with each choice.
const (
	ReasonDomainMatch = "domain-match"
	ReasonRandomTie   = "multiple-close-random"
	ReasonClosest     = "closest-location"
)

// LatLon is a geographic coordinate.
type LatLon struct {
	Lat float64
	Lon float64
}

// Result is the outcome of choosing among candidate locations.
type Result struct {
	Match               model.Place
	Matched             bool
	Confidence          float64
	Reason              string
	SelectedRandomMatch bool
	DistanceM           float64
}

// Chooser picks a candidate location. The random source is injectable
// so that historical decisions can be replayed with a recorded seed.
type Chooser struct {
	rng *rand.Rand
}

// Option configures a Chooser.
type Option func(*Chooser)

// WithRand sets the random source used for near-tie selection.
func WithRand(rng *rand.Rand) Option {
	return func(c *Chooser) {
		c.rng = rng
	}
}

// WithSeed seeds a deterministic random source.
func WithSeed(seed uint64) Option {
	return func(c *Chooser) {
		c.rng = rand.New(rand.NewPCG(seed, 0))
	}
}

// New creates a Chooser. Without options the random source is seeded
// from the wall clock.
func New(opts ...Option) *Chooser {
	c := &Chooser{
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Choose selects the best candidate for the visitor coordinate.
//
// A candidate whose website contains the probe domain wins outright at
// 0.95 regardless of distance. Otherwise, when more than one candidate
// sits within the near-tie radius, one is picked uniformly at random at
// 0.6. Otherwise the nearest candidate wins at 0.75. An empty candidate
// list yields an unmatched Result; avoiding that is the caller's job.
func (c *Chooser) Choose(cands []model.Place, visitor LatLon, domain string) Result {
	if len(cands) == 0 {
		return Result{}
	}

	domain = strings.ToLower(strings.TrimSpace(domain))

	type scored struct {
		place     model.Place
		distance  float64
		hasDomain bool
	}

	scoredCands := make([]scored, 0, len(cands))
	for _, p := range cands {
		sc := scored{
			place:    p,
			distance: HaversineM(visitor.Lat, visitor.Lon, p.Lat, p.Lon),
		}
		if domain != "" && strings.Contains(strings.ToLower(p.Website), domain) {
			sc.hasDomain = true
		}
		scoredCands = append(scoredCands, sc)
	}

	// Domain evidence dominates geography.
	for _, sc := range scoredCands {
		if sc.hasDomain {
			return Result{
				Match:      sc.place,
				Matched:    true,
				Confidence: confDomainMatch,
				Reason:     ReasonDomainMatch,
				DistanceM:  sc.distance,
			}
		}
	}

	// Near-ties are genuinely ambiguous: pick uniformly at random.
	var close []scored
	for _, sc := range scoredCands {
		if sc.distance <= nearTieRadiusM {
			close = append(close, sc)
		}
	}
	if len(close) > 1 {
		pick := close[c.rng.IntN(len(close))]
		return Result{
			Match:               pick.place,
			Matched:             true,
			Confidence:          confRandomTie,
			Reason:              ReasonRandomTie,
			SelectedRandomMatch: true,
			DistanceM:           pick.distance,
		}
	}

	best := scoredCands[0]
	for _, sc := range scoredCands[1:] {
		if sc.distance < best.distance {
			best = sc
		}
	}
	return Result{
		Match:      best.place,
		Matched:    true,
		Confidence: confClosest,
		Reason:     ReasonClosest,
		DistanceM:  best.distance,
	}
}

// HaversineM computes the great-circle distance in meters between two
// coordinates.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
