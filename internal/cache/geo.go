package cache

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodePoint converts a lat/lon pair to EWKB bytes with SRID 4326.
// EWKB coordinate order is lon, lat.
func EncodePoint(lat, lon float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "cache: encode point")
	}
	return data, nil
}

// DecodePoint converts EWKB bytes back to a lat/lon pair. Empty input
// yields the zero coordinate.
func DecodePoint(data []byte) (lat, lon float64, err error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "cache: decode point")
	}
	point, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("cache: expected point geometry, got %T", g)
	}
	coords := point.Coords()
	if len(coords) < 2 {
		return 0, 0, eris.New("cache: point without coordinates")
	}
	return coords[1], coords[0], nil
}
