package repo

import (
	"context"
	"errors"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
)

// ErrNotFound reports that a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type RunFilter struct {
	ProgrammeID string
	Status      domain.RunStatus
	Limit       int
}

type ArtefactFilter struct {
	RunID string
	Label string
	Limit int
}

type AlertFilter struct {
	ProgrammeID string
	State       domain.AlertState
	Limit       int
}

// ProgrammeRepository reads programme configuration and stamps the schedule
// fields; programme creation and editing live in the catalog service.
type ProgrammeRepository interface {
	GetProgramme(ctx context.Context, id string) (domain.Programme, error)
	GetProgrammeByCode(ctx context.Context, code string) (domain.Programme, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Programme, error)
	UpdateSchedule(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error
	LinkCounts(ctx context.Context, id string) (domain.LinkCounts, error)
}

// RunRepository manages run state with forward-only status progression.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	// MarkRunning atomically transitions a queued run to running and stamps
	// the start time. It reports false when the run was not in the queued
	// state, which callers treat as a lost lease.
	MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	FinalizeRun(ctx context.Context, run domain.Run) error
}

// StepRepository manages the ordered steps of a run.
type StepRepository interface {
	CreateStep(ctx context.Context, step domain.Step) error
	UpdateStepResult(ctx context.Context, step domain.Step) error
	ListByRun(ctx context.Context, runID string) ([]domain.Step, error)
}

// QAResultRepository appends quality outcomes; results are never updated.
type QAResultRepository interface {
	CreateQAResult(ctx context.Context, result domain.QAResult) error
	ListByRun(ctx context.Context, runID string) ([]domain.QAResult, error)
}

// ArtefactRepository manages content-addressed run outputs.
type ArtefactRepository interface {
	// UpsertArtefact inserts or overwrites the record keyed by
	// (run, step, label), returning the stored row.
	UpsertArtefact(ctx context.Context, artefact domain.Artefact) (domain.Artefact, error)
	GetArtefact(ctx context.Context, id string) (domain.Artefact, error)
	ListArtefacts(ctx context.Context, filter ArtefactFilter) ([]domain.Artefact, error)
	CountByRun(ctx context.Context, runID string) (int, error)
}

// AlertRepository manages operator-facing alerts; alerts outlive their runs.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert domain.Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]domain.Alert, error)
	CountOpenByProgramme(ctx context.Context, programmeID string) (int, error)
	ResolveAlert(ctx context.Context, id, resolvedBy string, resolvedAt time.Time) error
}

// AuditEventAppender ensures append-only audit writes.
type AuditEventAppender interface {
	Append(ctx context.Context, event domain.AuditEvent) (int64, error)
}

// LineageAppender records provenance edges between catalog entities.
type LineageAppender interface {
	AppendLineage(ctx context.Context, actor, subjectType, subjectID, predicate, objectType, objectID string, metadata domain.Metadata) error
}
