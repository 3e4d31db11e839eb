package domain

import (
	"errors"
	"strings"
	"time"
)

// AlertSeverity grades an operator-facing alert.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityError    AlertSeverity = "error"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertState tracks the operator workflow on an alert.
type AlertState string

const (
	AlertStateOpen         AlertState = "open"
	AlertStateAcknowledged AlertState = "acknowledged"
	AlertStateResolved     AlertState = "resolved"
)

// Alert is a durable signal raised by a blocking QA breach. Alerts outlive
// their triggering run and must be explicitly resolved by an operator.
type Alert struct {
	ID          string
	ProgrammeID string
	RunID       string
	Severity    AlertSeverity
	State       AlertState
	Code        string
	Message     string
	Details     Metadata
	CreatedBy   string
	CreatedAt   time.Time
	ResolvedBy  string
	ResolvedAt  *time.Time
}

func (a Alert) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("alert id is required")
	}
	if strings.TrimSpace(a.ProgrammeID) == "" {
		return errors.New("programme id is required")
	}
	switch a.Severity {
	case AlertSeverityInfo, AlertSeverityWarning, AlertSeverityError, AlertSeverityCritical:
	default:
		return errors.New("alert severity is invalid")
	}
	switch a.State {
	case AlertStateOpen, AlertStateAcknowledged, AlertStateResolved:
	default:
		return errors.New("alert state is invalid")
	}
	if strings.TrimSpace(a.Code) == "" {
		return errors.New("alert code is required")
	}
	return nil
}
