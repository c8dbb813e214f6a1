// Package db persists client-side dashboard state in a local SQLite database:
// the saved farm location and a rolling log of received alerts.
package db

import "time"

// SavedLocation is the persisted userLocation row.
type SavedLocation struct {
	Lat       float64
	Lon       float64
	Name      string
	UpdatedAt time.Time
}

// AlertRecord is an alert as received over the channel.
type AlertRecord struct {
	ID         string
	Message    string
	Severity   string
	Type       string
	CameraID   string
	Confidence *float64
	Timestamp  string
	ReceivedAt time.Time
}
