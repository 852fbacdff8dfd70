package collect

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/geomatch"
	"github.com/sells-group/leadtrace/internal/model"
	"github.com/sells-group/leadtrace/pkg/places"
)

const directoryNoLocationConfidence = 0.5

// Directory looks the candidate domain up in the business directory and
// lets the geo-match chooser pick among the returned locations using
// the visitor's IP-geolocation.
type Directory struct {
	client  places.Client
	chooser *geomatch.Chooser
}

// NewDirectory creates the collector. A nil chooser gets a default one.
func NewDirectory(client places.Client, chooser *geomatch.Chooser) *Directory {
	if chooser == nil {
		chooser = geomatch.New()
	}
	return &Directory{client: client, chooser: chooser}
}

func (c *Directory) Name() string { return "google_maps" }

// Collect implements Collector. Runs only when an earlier candidate
// domain exists to query by.
func (c *Directory) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	if len(target.Candidates) == 0 {
		return nil, nil
	}
	probe := model.NormalizeDomain(target.Candidates[0])
	if probe == "" {
		return nil, nil
	}

	cands, err := c.client.Search(ctx, probe)
	if err != nil {
		return nil, eris.Wrap(err, "directory: search")
	}
	if len(cands) == 0 {
		return nil, nil
	}

	// Without a visitor coordinate the chooser has nothing to compare
	// against; fall back to the directory's own ranking.
	if !target.HasLocation {
		sig, ok := model.NewSignal(probe, string(model.SourceGoogleMaps), directoryNoLocationConfidence, "no-ip-location")
		if !ok {
			return nil, nil
		}
		return []model.DomainSignal{sig}, nil
	}

	res := c.chooser.Choose(cands, geomatch.LatLon{Lat: target.Lat, Lon: target.Lon}, probe)
	if !res.Matched {
		return nil, nil
	}

	zap.L().Debug("directory: chose candidate",
		zap.String("probe", probe),
		zap.String("place", res.Match.Name),
		zap.Float64("distance_m", res.DistanceM),
		zap.String("reason", res.Reason),
		zap.Bool("random", res.SelectedRandomMatch),
	)

	domain := probe
	if w := model.NormalizeDomain(res.Match.Website); w != "" {
		domain = w
	}

	sig, ok := model.NewSignal(domain, string(model.SourceGoogleMaps), res.Confidence, res.Reason)
	if !ok {
		return nil, nil
	}
	return []model.DomainSignal{sig}, nil
}
