package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
)

type StepStore struct {
	db DB
}

const selectStepColumns = `step_id, run_id, ordering, step_key, step_type, status,
	started_at, finished_at, details, log_excerpt`

func NewStepStore(db DB) *StepStore {
	if db == nil {
		return nil
	}
	return &StepStore{db: db}
}

func (s *StepStore) CreateStep(ctx context.Context, step domain.Step) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step store not initialized")
	}
	if err := step.Validate(); err != nil {
		return err
	}
	detailsJSON, err := encodeMetadata(step.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO programme_run_steps (
			step_id,
			run_id,
			ordering,
			step_key,
			step_type,
			status,
			started_at,
			finished_at,
			details,
			log_excerpt
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		strings.TrimSpace(step.ID),
		strings.TrimSpace(step.RunID),
		step.Ordering,
		strings.TrimSpace(step.Key),
		string(step.Type),
		string(step.Status),
		normalizeTime(step.StartedAt),
		nullTime(step.FinishedAt),
		detailsJSON,
		nullIfEmpty(step.LogExcerpt),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// UpdateStepResult stamps the terminal outcome of a step; a step that already
// reached a terminal status is left untouched.
func (s *StepStore) UpdateStepResult(ctx context.Context, step domain.Step) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step store not initialized")
	}
	if err := step.Validate(); err != nil {
		return err
	}
	if !step.Status.IsTerminal() {
		return fmt.Errorf("step result requires a terminal status, got %q", step.Status)
	}
	detailsJSON, err := encodeMetadata(step.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE programme_run_steps
		 SET status = $1, finished_at = $2, details = $3, log_excerpt = $4
		 WHERE step_id = $5 AND status = $6`,
		string(step.Status),
		nullTime(step.FinishedAt),
		detailsJSON,
		nullIfEmpty(step.LogExcerpt),
		strings.TrimSpace(step.ID),
		string(domain.StepStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("update step result: %w", err)
	}
	return requireRowAffected(res, "update step result")
}

func (s *StepStore) ListByRun(ctx context.Context, runID string) ([]domain.Step, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("step store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectStepColumns+`
		 FROM programme_run_steps
		 WHERE run_id = $1
		 ORDER BY ordering ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	steps := make([]domain.Step, 0)
	for rows.Next() {
		var step domain.Step
		var stepType string
		var status string
		var finishedAt sql.NullTime
		var detailsJSON []byte
		var logExcerpt sql.NullString
		if err := rows.Scan(
			&step.ID,
			&step.RunID,
			&step.Ordering,
			&step.Key,
			&stepType,
			&status,
			&step.StartedAt,
			&finishedAt,
			&detailsJSON,
			&logExcerpt,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Type = domain.NormalizeStepType(stepType)
		step.Status = domain.NormalizeStepStatus(status)
		step.FinishedAt = timePtr(finishedAt)
		if logExcerpt.Valid {
			step.LogExcerpt = logExcerpt.String
		}
		details, err := decodeMetadata(detailsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
		step.Details = details
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return steps, nil
}
