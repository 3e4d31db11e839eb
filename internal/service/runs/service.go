package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/execution/pipelinespec"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/artifacts"
)

const runReportLabel = "run-report.json"

// QueueRunInput describes a run request.
type QueueRunInput struct {
	RunType     domain.RunType
	Trigger     domain.RunTrigger
	DryRun      bool
	RequestedBy string
	ExecuteNow  bool
}

// Deps bundles the stores and collaborators the run service operates on.
type Deps struct {
	Programmes repo.ProgrammeRepository
	Runs       repo.RunRepository
	Steps      repo.StepRepository
	QAResults  repo.QAResultRepository
	Artefacts  repo.ArtefactRepository
	Alerts     repo.AlertRepository
	Writer     artifacts.Writer
	Registry   *Registry
	Audit      repo.AuditEventAppender
	Lineage    repo.LineageAppender
	Logger     *slog.Logger
}

// Service owns the run lifecycle: queueing, step execution, finalisation and
// programme rescheduling. Audit and lineage writes are fire-and-forget.
type Service struct {
	programmes repo.ProgrammeRepository
	runs       repo.RunRepository
	steps      repo.StepRepository
	qaResults  repo.QAResultRepository
	artefacts  repo.ArtefactRepository
	alerts     repo.AlertRepository
	writer     artifacts.Writer
	registry   *Registry
	audit      repo.AuditEventAppender
	lineage    repo.LineageAppender
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

func NewService(deps Deps) (*Service, error) {
	if deps.Programmes == nil || deps.Runs == nil || deps.Steps == nil {
		return nil, errors.New("programme, run and step repositories are required")
	}
	if deps.QAResults == nil || deps.Artefacts == nil || deps.Alerts == nil {
		return nil, errors.New("qa result, artefact and alert repositories are required")
	}
	if deps.Registry == nil {
		return nil, errors.New("behavior registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		programmes: deps.Programmes,
		runs:       deps.Runs,
		steps:      deps.Steps,
		qaResults:  deps.QAResults,
		artefacts:  deps.Artefacts,
		alerts:     deps.Alerts,
		writer:     deps.Writer,
		registry:   deps.Registry,
		audit:      deps.Audit,
		lineage:    deps.Lineage,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// QueueRun creates a queued run for the programme, snapshotting the catalog
// link counts into the input summary, and optionally executes it immediately.
func (s *Service) QueueRun(ctx context.Context, programmeID string, input QueueRunInput) (domain.Run, error) {
	if s == nil || s.runs == nil {
		return domain.Run{}, errors.New("run service not initialized")
	}
	programme, err := s.programmes.GetProgramme(ctx, programmeID)
	if err != nil {
		return domain.Run{}, err
	}
	if !programme.Active {
		return domain.Run{}, fmt.Errorf("programme %q is inactive", programme.Code)
	}
	runType := domain.NormalizeRunType(string(input.RunType))
	if runType == "" {
		return domain.Run{}, fmt.Errorf("run type %q is invalid", input.RunType)
	}
	trigger := input.Trigger
	if trigger == "" {
		trigger = domain.TriggerManual
	}

	counts, err := s.programmes.LinkCounts(ctx, programme.ID)
	if err != nil {
		return domain.Run{}, fmt.Errorf("snapshot link counts: %w", err)
	}

	now := s.now().UTC()
	run := domain.Run{
		ID:            s.newID(),
		ProgrammeID:   programme.ID,
		ProgrammeCode: programme.Code,
		RunType:       runType,
		Trigger:       trigger,
		DryRun:        input.DryRun,
		Status:        domain.RunStatusQueued,
		RequestedBy:   strings.TrimSpace(input.RequestedBy),
		InputSummary: domain.Metadata{
			"dataset_links":   counts.Datasets,
			"indicator_links": counts.Indicators,
		},
		CreatedAt: now,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return domain.Run{}, err
	}
	s.appendAudit(ctx, run.RequestedBy, "run_queued", run, domain.Metadata{
		"trigger":  string(trigger),
		"run_type": string(runType),
		"dry_run":  input.DryRun,
	})

	if input.ExecuteNow {
		return s.ExecuteRun(ctx, run.ID, run.RequestedBy)
	}
	return run, nil
}

// ExecuteRun walks the run's pipeline to a terminal status. The queued-to-
// running claim happens in storage; a lost claim returns the stored run
// unchanged. Collaborator errors and panics become failed steps and escalate
// the run to failed, never out of this method.
func (s *Service) ExecuteRun(ctx context.Context, runID, actor string) (domain.Run, error) {
	if s == nil || s.runs == nil {
		return domain.Run{}, errors.New("run service not initialized")
	}
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if run.Status.IsTerminal() {
		return run, nil
	}

	startedAt := s.now().UTC()
	claimed, err := s.runs.MarkRunning(ctx, run.ID, startedAt)
	if err != nil {
		return domain.Run{}, err
	}
	if !claimed {
		return s.runs.GetRun(ctx, run.ID)
	}
	run.Status = domain.RunStatusRunning
	run.StartedAt = &startedAt

	programme, err := s.programmes.GetProgramme(ctx, run.ProgrammeID)
	if err != nil {
		return s.finalize(ctx, run, programme, []string{fmt.Sprintf("load programme: %v", err)}, actor)
	}

	specs, rejected := pipelinespec.Resolve(programme.Pipeline, run.RunType)
	if rejected != nil {
		s.logger.Warn("pipeline definition rejected, fallback applied",
			"programme", programme.Code, "run_id", run.ID, "error", rejected)
		s.recordDefinitionWarning(ctx, run, rejected)
	}

	var (
		lineage  []domain.LineageEntry
		severity = domain.StepStatusSucceeded
		errTexts []string
		executed int
	)
	for i, spec := range specs {
		step, errText := s.executeStep(ctx, programme, run, i+1, spec, actor)
		executed++
		lineage = append(lineage, domain.LineageEntry{StepKey: step.Key, Status: string(step.Status)})
		severity = domain.MostSevereStepStatus(severity, step.Status)
		if errText != "" {
			errTexts = append(errTexts, errText)
		}
		if step.Status.Halts() {
			break
		}
	}

	summary := domain.Metadata{
		"steps_total":    len(specs),
		"steps_executed": executed,
	}
	finalStatus := domain.RunStatusForStep(severity)
	if len(errTexts) > 0 {
		finalStatus = domain.RunStatusFailed
	}
	run.Status = finalStatus
	run.Lineage = lineage
	run.OutputSummary = summary
	return s.finalize(ctx, run, programme, errTexts, actor)
}

// GetRun returns the stored run.
func (s *Service) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	if s == nil || s.runs == nil {
		return domain.Run{}, errors.New("run service not initialized")
	}
	return s.runs.GetRun(ctx, runID)
}

// ListRuns returns stored runs for a programme, newest first.
func (s *Service) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.runs == nil {
		return nil, errors.New("run service not initialized")
	}
	return s.runs.ListRuns(ctx, filter)
}

func (s *Service) executeStep(ctx context.Context, programme domain.Programme, run domain.Run, ordering int, spec pipelinespec.StepSpec, actor string) (domain.Step, string) {
	step := domain.Step{
		ID:        s.newID(),
		RunID:     run.ID,
		Ordering:  ordering,
		Key:       spec.Key,
		Type:      domain.NormalizeStepType(spec.Type),
		Status:    domain.StepStatusRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.steps.CreateStep(ctx, step); err != nil {
		step.Status = domain.StepStatusFailed
		step.LogExcerpt = err.Error()
		return step, fmt.Sprintf("step %s: %v", step.Key, err)
	}

	var (
		outcome StepOutcome
		execErr error
	)
	if run.DryRun && step.Type == domain.StepTypePublish {
		outcome = StepOutcome{
			Status:     domain.StepStatusSucceeded,
			Details:    domain.Metadata{"skipped": true, "reason": "dry_run"},
			LogExcerpt: "publish skipped on dry run",
		}
	} else {
		behavior := s.registry.Lookup(programme.DomainTag, step.Type)
		if behavior == nil {
			execErr = fmt.Errorf("no behavior registered for step type %q", step.Type)
		} else {
			outcome, execErr = executeBehavior(ctx, behavior, StepContext{
				Run:       run,
				Programme: programme,
				Step:      step,
				Params:    spec.Params,
				Actor:     actor,
			})
		}
	}

	errText := ""
	if execErr != nil {
		outcome = StepOutcome{
			Status:     domain.StepStatusFailed,
			Details:    domain.Metadata{"error": execErr.Error()},
			LogExcerpt: execErr.Error(),
		}
		errText = fmt.Sprintf("step %s: %v", step.Key, execErr)
	}
	if outcome.Status == "" {
		outcome.Status = domain.StepStatusSucceeded
	}

	finishedAt := s.now().UTC()
	step.Status = outcome.Status
	step.FinishedAt = &finishedAt
	step.Details = outcome.Details
	step.LogExcerpt = outcome.LogExcerpt
	if err := s.steps.UpdateStepResult(ctx, step); err != nil {
		s.logger.Error("record step result", "run_id", run.ID, "step", step.Key, "error", err)
	}
	return step, errText
}

// executeBehavior converts a behavior panic into an error so a broken
// collaborator can never take the executor down.
func executeBehavior(ctx context.Context, behavior Behavior, sc StepContext) (outcome StepOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = StepOutcome{}
			err = fmt.Errorf("step behavior panicked: %v", r)
		}
	}()
	return behavior.Execute(ctx, sc)
}

func (s *Service) finalize(ctx context.Context, run domain.Run, programme domain.Programme, errTexts []string, actor string) (domain.Run, error) {
	finishedAt := s.now().UTC()
	run.FinishedAt = &finishedAt
	if !run.Status.IsTerminal() {
		run.Status = domain.RunStatusFailed
	}
	if len(errTexts) > 0 {
		run.ErrorMessage = strings.Join(errTexts, "; ")
		run.LogExcerpt = errTexts[len(errTexts)-1]
	} else if run.Status == domain.RunStatusSucceeded {
		run.LogExcerpt = "all steps completed"
	}

	summary := run.OutputSummary
	if summary == nil {
		summary = domain.Metadata{}
	}
	if results, err := s.qaResults.ListByRun(ctx, run.ID); err == nil {
		summary["qa_results"] = len(results)
	}
	if count, err := s.artefacts.CountByRun(ctx, run.ID); err == nil {
		summary["artefacts"] = count
	}
	if open, err := s.alerts.CountOpenByProgramme(ctx, run.ProgrammeID); err == nil {
		summary["open_alerts"] = open
	}
	run.OutputSummary = summary

	report := s.writeRunReport(ctx, run, actor)
	if report != nil {
		// The report itself is an artefact, so the count moves after writing it.
		if count, err := s.artefacts.CountByRun(ctx, run.ID); err == nil {
			summary["artefacts"] = count
		}
	}

	if err := s.runs.FinalizeRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("finalize run: %w", err)
	}

	if programme.ID != "" {
		nextRunAt := domain.NextRunAt(programme.Cadence, finishedAt)
		if err := s.programmes.UpdateSchedule(ctx, programme.ID, finishedAt, nextRunAt); err != nil {
			s.logger.Error("update programme schedule", "programme", programme.Code, "error", err)
		}
	}

	s.appendAudit(ctx, actor, auditActionForStatus(run.Status), run, domain.Metadata{
		"status":         string(run.Status),
		"steps_executed": summary["steps_executed"],
		"error":          run.ErrorMessage,
	})
	s.appendLineage(ctx, actor, run, report)

	s.logger.Info("run finished",
		"run_id", run.ID, "programme", run.ProgrammeCode, "status", string(run.Status))
	return run, nil
}

func (s *Service) writeRunReport(ctx context.Context, run domain.Run, actor string) *domain.Artefact {
	if s.writer == nil {
		return nil
	}
	blob, err := json.Marshal(map[string]any{
		"run_id":         run.ID,
		"programme_code": run.ProgrammeCode,
		"run_type":       string(run.RunType),
		"trigger":        string(run.Trigger),
		"dry_run":        run.DryRun,
		"status":         string(run.Status),
		"started_at":     run.StartedAt,
		"finished_at":    run.FinishedAt,
		"lineage":        run.Lineage,
		"output_summary": run.OutputSummary,
		"error_message":  run.ErrorMessage,
	})
	if err != nil {
		s.logger.Error("encode run report", "run_id", run.ID, "error", err)
		return nil
	}
	artefact, err := s.writer.WriteArtifact(ctx, artifacts.WriteInput{
		RunID:     run.ID,
		Label:     runReportLabel,
		Body:      blob,
		MediaType: "application/json",
		Actor:     actor,
	})
	if err != nil {
		s.logger.Error("write run report", "run_id", run.ID, "error", err)
		return nil
	}
	return &artefact
}

func (s *Service) recordDefinitionWarning(ctx context.Context, run domain.Run, rejected error) {
	result := domain.QAResult{
		ID:        s.newID(),
		RunID:     run.ID,
		Code:      "pipeline.definition",
		Status:    domain.QAStatusWarn,
		Message:   "configured pipeline rejected, default applied",
		Details:   domain.Metadata{"error": rejected.Error()},
		CreatedAt: s.now().UTC(),
	}
	if err := s.qaResults.CreateQAResult(ctx, result); err != nil {
		s.logger.Error("record pipeline definition warning", "run_id", run.ID, "error", err)
	}
}

func (s *Service) appendAudit(ctx context.Context, actor, action string, run domain.Run, payload domain.Metadata) {
	if s.audit == nil {
		return
	}
	if strings.TrimSpace(actor) == "" {
		actor = "orchestrator"
	}
	payload["programme_id"] = run.ProgrammeID
	payload["programme_code"] = run.ProgrammeCode
	if _, err := s.audit.Append(ctx, domain.AuditEvent{
		OccurredAt:   s.now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: "programme_run",
		ResourceID:   run.ID,
		Payload:      payload,
	}); err != nil {
		s.logger.Error("append audit event", "run_id", run.ID, "action", action, "error", err)
	}
}

func (s *Service) appendLineage(ctx context.Context, actor string, run domain.Run, report *domain.Artefact) {
	if s.lineage == nil {
		return
	}
	if strings.TrimSpace(actor) == "" {
		actor = "orchestrator"
	}
	if err := s.lineage.AppendLineage(ctx, actor,
		"programme_run", run.ID, "executed_for", "programme", run.ProgrammeID,
		domain.Metadata{"status": string(run.Status)}); err != nil {
		s.logger.Error("append run lineage", "run_id", run.ID, "error", err)
	}
	if report != nil {
		if err := s.lineage.AppendLineage(ctx, actor,
			"programme_run", run.ID, "produced", "artefact", report.ID,
			domain.Metadata{"label": report.Label}); err != nil {
			s.logger.Error("append artefact lineage", "run_id", run.ID, "error", err)
		}
	}
}

func auditActionForStatus(status domain.RunStatus) string {
	switch status {
	case domain.RunStatusSucceeded:
		return "run_succeeded"
	case domain.RunStatusBlocked:
		return "run_blocked"
	case domain.RunStatusFailed:
		return "run_failed"
	default:
		return "run_updated"
	}
}
