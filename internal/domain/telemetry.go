package domain

import "time"

// Message is one inbound message from the local bus.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Position is a latitude/longitude pair in degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the position is the 0/0 placeholder GPS
// producers send when they have no location.
func (p Position) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// GPSReading is the decoded GPS topic payload. Longitude arrives as
// "long" from the bike transmitter and as "lon" from the serial reader.
type GPSReading struct {
	Device   string
	TS       int64
	Fix      bool
	Lat      float64
	Lon      float64
	Alt      float64
	Lockmode bool
	NMEA     string
	SpeedKn  *float64
}

func (r GPSReading) Position() Position {
	return Position{Lat: r.Lat, Lon: r.Lon}
}

// HasValidFix is true only when the receiver reports a fix and the
// coordinates are not the 0/0 placeholder.
func (r GPSReading) HasValidFix() bool {
	return r.Fix && !r.Position().IsZero()
}

type LockState string

const (
	StateUnlocked       LockState = "UNLOCKED"
	StateLockedBaseline LockState = "LOCKED_BASELINE"
	StateLockedAlerted  LockState = "LOCKED_ALERTED"
)

// DeviceSnapshot is the latest known condition of one tracked bike.
type DeviceSnapshot struct {
	DeviceID  string    `json:"device_id"`
	State     LockState `json:"state"`
	Baseline  *Position `json:"baseline,omitempty"`
	Position  Position  `json:"position"`
	Fix       bool      `json:"fix"`
	Lockmode  bool      `json:"lockmode"`
	SpeedKn   float64   `json:"speed_kn"`
	UpdatedAt time.Time `json:"updated_at"`
}
