package domain

import (
	"errors"
	"strings"
	"time"
)

// RunType selects which part of the pipeline a run covers.
type RunType string

const (
	RunTypeFull     RunType = "full"
	RunTypeIngest   RunType = "ingest"
	RunTypeValidate RunType = "validate"
	RunTypeCompute  RunType = "compute"
	RunTypePublish  RunType = "publish"
)

// RunTrigger records what initiated a run.
type RunTrigger string

const (
	TriggerManual      RunTrigger = "manual"
	TriggerScheduled   RunTrigger = "scheduled"
	TriggerIntegration RunTrigger = "integration"
)

// RunStatus is the lifecycle state of a run. Once running, a run only moves
// forward to a terminal status, never back.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusBlocked   RunStatus = "blocked"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one execution attempt of a programme's pipeline.
type Run struct {
	ID            string
	ProgrammeID   string
	ProgrammeCode string
	RunType       RunType
	Trigger       RunTrigger
	DryRun        bool
	Status        RunStatus
	RequestedBy   string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	InputSummary  Metadata
	OutputSummary Metadata
	Lineage       []LineageEntry
	ErrorMessage  string
	LogExcerpt    string
	CreatedAt     time.Time
}

// LineageEntry records one ordered step outcome for the run's lineage trail.
type LineageEntry struct {
	StepKey string `json:"step_key"`
	Status  string `json:"status"`
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ProgrammeID) == "" {
		return errors.New("programme id is required")
	}
	if NormalizeRunType(string(r.RunType)) == "" {
		return errors.New("run type is invalid")
	}
	if NormalizeRunStatus(string(r.Status)) == "" {
		return errors.New("run status is invalid")
	}
	return nil
}

// NormalizeRunType maps free-form run type values to canonical ones.
func NormalizeRunType(value string) RunType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(RunTypeFull), "":
		return RunTypeFull
	case string(RunTypeIngest):
		return RunTypeIngest
	case string(RunTypeValidate):
		return RunTypeValidate
	case string(RunTypeCompute):
		return RunTypeCompute
	case string(RunTypePublish):
		return RunTypePublish
	default:
		return ""
	}
}

// NormalizeRunStatus maps free-form status values to canonical run statuses.
func NormalizeRunStatus(value string) RunStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(RunStatusQueued), "pending":
		return RunStatusQueued
	case string(RunStatusRunning):
		return RunStatusRunning
	case string(RunStatusSucceeded):
		return RunStatusSucceeded
	case string(RunStatusFailed):
		return RunStatusFailed
	case string(RunStatusBlocked):
		return RunStatusBlocked
	case string(RunStatusCancelled), "canceled":
		return RunStatusCancelled
	default:
		return ""
	}
}

// IsTerminal reports whether a run status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusBlocked, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionRunStatus enforces forward-only run status progression.
func CanTransitionRunStatus(current, next RunStatus) bool {
	if current == "" || next == "" {
		return false
	}
	if current == next {
		return true
	}
	if current.IsTerminal() {
		return false
	}
	return runStatusOrder(current) < runStatusOrder(next)
}

func runStatusOrder(status RunStatus) int {
	switch status {
	case RunStatusQueued:
		return 1
	case RunStatusRunning:
		return 2
	case RunStatusSucceeded, RunStatusFailed, RunStatusBlocked, RunStatusCancelled:
		return 3
	default:
		return 0
	}
}
