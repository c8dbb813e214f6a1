// Package alerts keeps the bounded, self-expiring list of detection alerts
// shown on the dashboard and decides when an alert should make noise.
package alerts

import (
	"strings"
	"time"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
)

// Severity of an alert.
type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

// ParseSeverity normalizes a wire severity. Unknown values become Low.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case High, "critical":
		return High
	case Medium, "warning":
		return Medium
	default:
		return Low
	}
}

// Alert is one detection alert.
type Alert struct {
	ID         channel.FlexString `json:"id"`
	Message    string             `json:"message"`
	Severity   string             `json:"severity"`
	Timestamp  string             `json:"timestamp"`
	Type       string             `json:"type,omitempty"`
	CameraID   channel.FlexString `json:"camera_id,omitempty"`
	Confidence *float64           `json:"confidence,omitempty"`

	InsertedAt time.Time `json:"-"`
	ExpiresAt  time.Time `json:"-"`
}

// Level returns the normalized severity.
func (a Alert) Level() Severity {
	return ParseSeverity(a.Severity)
}

// Time parses the server timestamp, falling back to InsertedAt.
func (a Alert) Time() time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, a.Timestamp, time.Local); err == nil {
			return t
		}
	}
	return a.InsertedAt
}

// key identifies the alert for de-duplication across baseline replays.
func (a Alert) key() string {
	if a.ID != "" {
		return "id:" + string(a.ID)
	}
	return strings.Join([]string{a.Type, a.Message, string(a.CameraID), a.Timestamp}, "\x00")
}
