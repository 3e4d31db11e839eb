package domain

import (
	"errors"
	"strings"
	"time"
)

// QAStatus classifies a quality check outcome.
type QAStatus string

const (
	QAStatusPass QAStatus = "pass"
	QAStatusWarn QAStatus = "warn"
	QAStatusFail QAStatus = "fail"
)

// QAResult is an append-only quality evaluation outcome attached to a run and
// optionally a step. Results are never updated after creation.
type QAResult struct {
	ID        string
	RunID     string
	StepID    string
	Code      string
	Status    QAStatus
	Message   string
	Details   Metadata
	CreatedAt time.Time
}

func (q QAResult) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return errors.New("qa result id is required")
	}
	if strings.TrimSpace(q.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(q.Code) == "" {
		return errors.New("qa check code is required")
	}
	switch q.Status {
	case QAStatusPass, QAStatusWarn, QAStatusFail:
	default:
		return errors.New("qa status is invalid")
	}
	return nil
}
