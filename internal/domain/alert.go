package domain

import "time"

type AlertType string

const (
	AlertTheft AlertType = "THEFT"
)

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// TheftAlert is raised once per lock cycle when a locked bike moves
// further than the threshold from where it was locked.
type TheftAlert struct {
	ID          string
	DeviceID    string
	Type        AlertType
	Severity    AlertSeverity
	Baseline    Position
	Position    Position
	DistanceM   float64
	TriggeredAt time.Time
}
