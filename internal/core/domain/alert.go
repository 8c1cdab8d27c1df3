package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlertSeverity ranks a device alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// ParseSeverity normalizes a severity string; empty means info.
func ParseSeverity(s string) (AlertSeverity, error) {
	switch AlertSeverity(strings.ToLower(strings.TrimSpace(s))) {
	case "", SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// DeviceAlert is pushed to a device through the alert publisher.
type DeviceAlert struct {
	DeviceID  string        `json:"device_id"`
	Message   string        `json:"message"`
	Severity  AlertSeverity `json:"severity"`
	SessionID SessionID     `json:"session_id,omitempty"`
	RaisedAt  time.Time     `json:"raised_at"`
}
