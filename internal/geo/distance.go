// Package geo holds great-circle helpers for GPS positions.
package geo

import (
	"math"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
)

const earthRadiusM = 6371000.0

// Distance returns the haversine distance in meters between a and b.
// Either side being nil or the 0/0 placeholder yields 0: no distance
// is claimed without two usable fixes.
func Distance(a, b *domain.Position) float64 {
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return 0
	}

	lat1Rad := a.Lat * math.Pi / 180.0
	lat2Rad := b.Lat * math.Pi / 180.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}
