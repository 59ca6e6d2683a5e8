package notify

import (
	"fmt"
	"math"
	"time"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
)

// Notification is the JSON body posted to the alert webhook.
type Notification struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Device    string  `json:"device"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	DistanceM float64 `json:"distance_m"`
	Timestamp string  `json:"timestamp"`
	MapURL    string  `json:"map_url"`
}

func FromAlert(a domain.TheftAlert) Notification {
	return Notification{
		ID:        a.ID,
		Title:     fmt.Sprintf("Bike %s moved while locked", a.DeviceID),
		Device:    a.DeviceID,
		Lat:       a.Position.Lat,
		Lon:       a.Position.Lon,
		DistanceM: math.Round(a.DistanceM*10) / 10,
		Timestamp: a.TriggeredAt.UTC().Format(time.RFC3339),
		MapURL:    MapLink(a.Position),
	}
}

// MapLink points at the position on OpenStreetMap, the same tiles the
// tracker frontend uses.
func MapLink(p domain.Position) string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=18/%.6f/%.6f",
		p.Lat, p.Lon, p.Lat, p.Lon)
}
