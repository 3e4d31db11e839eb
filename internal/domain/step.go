package domain

import (
	"errors"
	"strings"
	"time"
)

// StepType is the kind of work a pipeline step performs.
type StepType string

const (
	StepTypeIngest   StepType = "ingest"
	StepTypeValidate StepType = "validate"
	StepTypeCompute  StepType = "compute"
	StepTypePublish  StepType = "publish"
)

// StepStatus is the lifecycle state of a step within a run.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusBlocked   StepStatus = "blocked"
	StepStatusFailed    StepStatus = "failed"
)

// Step is one ordered unit of work within a run. Ordering is 1-based,
// contiguous and strictly increasing per run.
type Step struct {
	ID         string
	RunID      string
	Ordering   int
	Key        string
	Type       StepType
	Status     StepStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Details    Metadata
	LogExcerpt string
}

func (s Step) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("step id is required")
	}
	if strings.TrimSpace(s.RunID) == "" {
		return errors.New("run id is required")
	}
	if s.Ordering < 1 {
		return errors.New("step ordering must be >= 1")
	}
	if strings.TrimSpace(s.Key) == "" {
		return errors.New("step key is required")
	}
	if NormalizeStepType(string(s.Type)) == "" {
		return errors.New("step type is invalid")
	}
	if NormalizeStepStatus(string(s.Status)) == "" {
		return errors.New("step status is invalid")
	}
	return nil
}

// NormalizeStepType maps free-form step type values to canonical ones.
func NormalizeStepType(value string) StepType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StepTypeIngest):
		return StepTypeIngest
	case string(StepTypeValidate):
		return StepTypeValidate
	case string(StepTypeCompute):
		return StepTypeCompute
	case string(StepTypePublish):
		return StepTypePublish
	default:
		return ""
	}
}

// NormalizeStepStatus maps free-form status values to canonical step statuses.
func NormalizeStepStatus(value string) StepStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StepStatusRunning):
		return StepStatusRunning
	case string(StepStatusSucceeded):
		return StepStatusSucceeded
	case string(StepStatusBlocked):
		return StepStatusBlocked
	case string(StepStatusFailed):
		return StepStatusFailed
	default:
		return ""
	}
}

// IsTerminal reports whether a step status admits no further transitions.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSucceeded, StepStatusBlocked, StepStatusFailed:
		return true
	default:
		return false
	}
}

// Halts reports whether a step outcome stops the run before later steps start.
func (s StepStatus) Halts() bool {
	return s == StepStatusBlocked || s == StepStatusFailed
}

// MostSevereStepStatus returns the worse of two step outcomes.
// Severity order: succeeded < blocked < failed.
func MostSevereStepStatus(a, b StepStatus) StepStatus {
	if stepSeverity(b) > stepSeverity(a) {
		return b
	}
	return a
}

// RunStatusForStep maps a terminal step status to the equivalent run status.
func RunStatusForStep(status StepStatus) RunStatus {
	switch status {
	case StepStatusFailed:
		return RunStatusFailed
	case StepStatusBlocked:
		return RunStatusBlocked
	default:
		return RunStatusSucceeded
	}
}

func stepSeverity(status StepStatus) int {
	switch status {
	case StepStatusFailed:
		return 3
	case StepStatusBlocked:
		return 2
	case StepStatusSucceeded:
		return 1
	default:
		return 0
	}
}
