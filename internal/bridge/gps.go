package bridge

import (
	"encoding/json"
	"errors"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
)

var errNotObject = errors.New("gps payload is not a JSON object")

// decodeGPS reads a GPS payload leniently: a field that is missing or
// of the wrong type takes its zero value. It also returns the payload
// to forward, in which "long" has been renamed to "lon". Payloads that
// need no rename are returned byte-identical.
func decodeGPS(payload []byte, fallbackDevice string) (domain.GPSReading, []byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.GPSReading{}, payload, err
	}
	if fields == nil {
		return domain.GPSReading{}, payload, errNotObject
	}

	r := domain.GPSReading{
		Device:   stringField(fields, "device"),
		TS:       int64(numberField(fields, "ts")),
		Fix:      boolField(fields, "fix"),
		Lat:      numberField(fields, "lat"),
		Alt:      numberField(fields, "alt"),
		Lockmode: boolField(fields, "lockmode"),
		NMEA:     stringField(fields, "nmea"),
	}
	if r.Device == "" {
		r.Device = fallbackDevice
	}
	if _, ok := fields["lon"]; ok {
		r.Lon = numberField(fields, "lon")
	} else {
		r.Lon = numberField(fields, "long")
	}
	if raw, ok := fields["speed_kn"]; ok {
		var v float64
		if json.Unmarshal(raw, &v) == nil {
			r.SpeedKn = &v
		}
	}

	out, err := renameLongitude(payload, fields)
	if err != nil {
		return r, payload, nil
	}
	return r, out, nil
}

// renameLongitude moves "long" to "lon" unless "lon" is already set.
func renameLongitude(payload []byte, fields map[string]json.RawMessage) ([]byte, error) {
	long, hasLong := fields["long"]
	if _, hasLon := fields["lon"]; !hasLong || hasLon {
		return payload, nil
	}

	renamed := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		renamed[k] = v
	}
	delete(renamed, "long")
	renamed["lon"] = long
	return json.Marshal(renamed)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func numberField(fields map[string]json.RawMessage, key string) float64 {
	var f float64
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, &f)
	}
	return f
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	var b bool
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, &b)
	}
	return b
}
