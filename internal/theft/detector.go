// Package theft tracks the lock cycle of each bike and raises an alert
// when a locked bike moves away from where it was locked.
//
// Each device runs a three state machine:
//
//	UNLOCKED --lock + fix--> LOCKED_BASELINE --moved > threshold--> LOCKED_ALERTED
//	    ^                           |                                     |
//	    +-----------unlock----------+-----------------unlock--------------+
//
// Readings without a valid fix never cause a transition. The baseline
// is the position at the start of the lock cycle and is not moved while
// locked, so slow drift accumulates against it. LOCKED_ALERTED has no
// outgoing alert edge, which is what limits a lock cycle to one alert.
package theft

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/geo"
)

// Notifier receives alerts. Fire must not block.
type Notifier interface {
	Fire(alert domain.TheftAlert)
}

type track struct {
	state     domain.LockState
	baseline  *domain.Position
	last      domain.GPSReading
	updatedAt time.Time
}

type Detector struct {
	thresholdM float64
	notifier   Notifier
	logger     *slog.Logger

	mu     sync.Mutex
	tracks map[string]*track
}

func NewDetector(thresholdM float64, notifier Notifier, logger *slog.Logger) *Detector {
	return &Detector{
		thresholdM: thresholdM,
		notifier:   notifier,
		logger:     logger.With("component", "theft"),
		tracks:     make(map[string]*track),
	}
}

// Process feeds one reading for r.Device into its state machine and
// returns the resulting snapshot. The notifier is called outside the
// lock, at most once per lock cycle.
func (d *Detector) Process(r domain.GPSReading, now time.Time) domain.DeviceSnapshot {
	d.mu.Lock()

	t, ok := d.tracks[r.Device]
	if !ok {
		t = &track{state: domain.StateUnlocked}
		d.tracks[r.Device] = t
	}
	t.last = r
	t.updatedAt = now

	var alert *domain.TheftAlert
	if r.HasValidFix() {
		alert = d.transition(r.Device, t, r, now)
	}
	snap := snapshotOf(r.Device, t)

	d.mu.Unlock()

	if alert != nil {
		d.logger.Warn("locked bike moved",
			"device", alert.DeviceID,
			"distance_m", alert.DistanceM,
			"lat", alert.Position.Lat,
			"lon", alert.Position.Lon,
		)
		if d.notifier != nil {
			d.notifier.Fire(*alert)
		}
	}
	return snap
}

// transition must be called with d.mu held and a valid fix.
func (d *Detector) transition(device string, t *track, r domain.GPSReading, now time.Time) *domain.TheftAlert {
	pos := r.Position()

	if !r.Lockmode {
		if t.state != domain.StateUnlocked {
			d.logger.Info("lock cycle ended", "device", device, "from", t.state)
		}
		t.state = domain.StateUnlocked
		t.baseline = nil
		return nil
	}

	switch t.state {
	case domain.StateUnlocked:
		t.state = domain.StateLockedBaseline
		t.baseline = &pos
		d.logger.Info("lock cycle started", "device", device, "lat", pos.Lat, "lon", pos.Lon)
		return nil

	case domain.StateLockedBaseline:
		dist := geo.Distance(t.baseline, &pos)
		if dist <= d.thresholdM {
			return nil
		}
		t.state = domain.StateLockedAlerted
		return &domain.TheftAlert{
			ID:          uuid.NewString(),
			DeviceID:    device,
			Type:        domain.AlertTheft,
			Severity:    domain.SeverityCritical,
			Baseline:    *t.baseline,
			Position:    pos,
			DistanceM:   dist,
			TriggeredAt: now,
		}

	default:
		// LOCKED_ALERTED: already reported for this cycle
		return nil
	}
}

// Snapshot returns the current state of one device.
func (d *Detector) Snapshot(device string) (domain.DeviceSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tracks[device]
	if !ok {
		return domain.DeviceSnapshot{}, false
	}
	return snapshotOf(device, t), true
}

// Snapshots returns every tracked device ordered by id.
func (d *Detector) Snapshots() []domain.DeviceSnapshot {
	d.mu.Lock()
	out := make([]domain.DeviceSnapshot, 0, len(d.tracks))
	for device, t := range d.tracks {
		out = append(out, snapshotOf(device, t))
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func snapshotOf(device string, t *track) domain.DeviceSnapshot {
	snap := domain.DeviceSnapshot{
		DeviceID:  device,
		State:     t.state,
		Position:  t.last.Position(),
		Fix:       t.last.Fix,
		Lockmode:  t.last.Lockmode,
		UpdatedAt: t.updatedAt,
	}
	if t.baseline != nil {
		b := *t.baseline
		snap.Baseline = &b
	}
	if t.last.SpeedKn != nil {
		snap.SpeedKn = *t.last.SpeedKn
	}
	return snap
}
