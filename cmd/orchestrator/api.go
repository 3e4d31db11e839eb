package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/auth"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/httpserver"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/runs"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/scheduler"
)

type api struct {
	programmes repo.ProgrammeRepository
	runs       *runs.Service
	alerts     repo.AlertRepository
	artefacts  repo.ArtefactRepository
	qaResults  repo.QAResultRepository
	scheduler  *scheduler.Scheduler
}

func (a *api) routes(authn auth.Authenticator, mode auth.Mode, readyz http.HandlerFunc, service string) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", httpserver.Healthz(service))
	r.Get("/readyz", readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/programmes/{code}/runs", a.handleListRuns)
		r.Get("/programmes/{code}/alerts", a.handleListAlerts)
		r.Get("/runs/{runID}", a.handleGetRun)
		r.Get("/runs/{runID}/artefacts", a.handleListArtefacts)
		r.Get("/runs/{runID}/qa-results", a.handleListQAResults)

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return auth.Middleware(authn, mode, next)
			})
			r.Post("/programmes/{code}/runs", a.handleTriggerRun)
			r.Post("/scheduler/tick", a.handleSchedulerTick)
			r.Post("/alerts/{alertID}/resolve", a.handleResolveAlert)
		})
	})
	return r
}

type triggerRunRequest struct {
	RunType string `json:"run_type"`
	DryRun  bool   `json:"dry_run"`
	Execute bool   `json:"execute"`
}

func (a *api) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	programme, ok := a.loadProgramme(w, r)
	if !ok {
		return
	}

	var req triggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	run, err := a.runs.QueueRun(r.Context(), programme.ID, runs.QueueRunInput{
		RunType:     domain.RunType(strings.TrimSpace(req.RunType)),
		Trigger:     domain.TriggerManual,
		DryRun:      req.DryRun,
		RequestedBy: identity.Actor(),
		ExecuteNow:  req.Execute,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, runResponse(run))
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := a.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, runResponse(run))
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	programme, ok := a.loadProgramme(w, r)
	if !ok {
		return
	}
	list, err := a.runs.ListRuns(r.Context(), repo.RunFilter{
		ProgrammeID: programme.ID,
		Status:      domain.NormalizeRunStatus(r.URL.Query().Get("status")),
		Limit:       50,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, run := range list {
		out = append(out, runResponse(run))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (a *api) handleListArtefacts(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	list, err := a.artefacts.ListArtefacts(r.Context(), repo.ArtefactFilter{RunID: runID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, artefact := range list {
		out = append(out, map[string]any{
			"artefact_id": artefact.ID,
			"step_id":     artefact.StepID,
			"label":       artefact.Label,
			"object_key":  artefact.ObjectKey,
			"media_type":  artefact.MediaType,
			"sha256":      artefact.SHA256,
			"size_bytes":  artefact.SizeBytes,
			"created_at":  artefact.CreatedAt,
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"artefacts": out})
}

func (a *api) handleListQAResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	list, err := a.qaResults.ListByRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, result := range list {
		out = append(out, map[string]any{
			"qa_result_id": result.ID,
			"step_id":      result.StepID,
			"code":         result.Code,
			"status":       string(result.Status),
			"message":      result.Message,
			"details":      result.Details,
			"created_at":   result.CreatedAt,
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"qa_results": out})
}

func (a *api) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	programme, ok := a.loadProgramme(w, r)
	if !ok {
		return
	}
	list, err := a.alerts.ListAlerts(r.Context(), repo.AlertFilter{
		ProgrammeID: programme.ID,
		State:       domain.AlertState(strings.TrimSpace(r.URL.Query().Get("state"))),
		Limit:       100,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, alert := range list {
		out = append(out, map[string]any{
			"alert_id":    alert.ID,
			"run_id":      alert.RunID,
			"severity":    string(alert.Severity),
			"state":       string(alert.State),
			"code":        alert.Code,
			"message":     alert.Message,
			"created_at":  alert.CreatedAt,
			"resolved_by": alert.ResolvedBy,
			"resolved_at": alert.ResolvedAt,
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func (a *api) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	identity, _ := auth.IdentityFromContext(r.Context())
	if err := a.alerts.ResolveAlert(r.Context(), alertID, identity.Actor(), time.Now().UTC()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"alert_id": alertID, "state": string(domain.AlertStateResolved)})
}

func (a *api) handleSchedulerTick(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	outcomes, err := a.scheduler.ProcessDueProgrammes(r.Context(), identity.Actor())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]map[string]any, 0, len(outcomes))
	for _, outcome := range outcomes {
		entry := map[string]any{
			"programme_id":   outcome.ProgrammeID,
			"programme_code": outcome.ProgrammeCode,
			"run_id":         outcome.RunID,
			"status":         string(outcome.Status),
		}
		if outcome.Err != nil {
			entry["error"] = outcome.Err.Error()
		}
		out = append(out, entry)
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"processed": len(outcomes), "outcomes": out})
}

func (a *api) loadProgramme(w http.ResponseWriter, r *http.Request) (domain.Programme, bool) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	programme, err := a.programmes.GetProgrammeByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "programme_not_found")
			return domain.Programme{}, false
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return domain.Programme{}, false
	}
	return programme, true
}

func runResponse(run domain.Run) map[string]any {
	return map[string]any{
		"run_id":         run.ID,
		"programme_id":   run.ProgrammeID,
		"programme_code": run.ProgrammeCode,
		"run_type":       string(run.RunType),
		"trigger":        string(run.Trigger),
		"dry_run":        run.DryRun,
		"status":         string(run.Status),
		"requested_by":   run.RequestedBy,
		"started_at":     run.StartedAt,
		"finished_at":    run.FinishedAt,
		"input_summary":  run.InputSummary,
		"output_summary": run.OutputSummary,
		"lineage":        run.Lineage,
		"error_message":  run.ErrorMessage,
		"created_at":     run.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	httpserver.WriteJSON(w, status, map[string]any{"error": code})
}
