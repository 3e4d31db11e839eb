package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
)

type RunStore struct {
	db DB
}

const selectRunColumns = `run_id, programme_id, programme_code, run_type, trigger_kind, dry_run,
	status, requested_by, started_at, finished_at, input_summary, output_summary, lineage,
	error_message, log_excerpt, created_at`

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	inputJSON, err := encodeMetadata(run.InputSummary)
	if err != nil {
		return fmt.Errorf("encode input summary: %w", err)
	}
	outputJSON, err := encodeMetadata(run.OutputSummary)
	if err != nil {
		return fmt.Errorf("encode output summary: %w", err)
	}
	lineageJSON, err := encodeLineage(run.Lineage)
	if err != nil {
		return fmt.Errorf("encode lineage: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO programme_runs (
			run_id,
			programme_id,
			programme_code,
			run_type,
			trigger_kind,
			dry_run,
			status,
			requested_by,
			started_at,
			finished_at,
			input_summary,
			output_summary,
			lineage,
			error_message,
			log_excerpt,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.ProgrammeID),
		nullIfEmpty(run.ProgrammeCode),
		string(run.RunType),
		string(run.Trigger),
		run.DryRun,
		string(run.Status),
		nullIfEmpty(run.RequestedBy),
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		inputJSON,
		outputJSON,
		lineageJSON,
		nullIfEmpty(run.ErrorMessage),
		nullIfEmpty(run.LogExcerpt),
		normalizeTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+selectRunColumns+` FROM programme_runs WHERE run_id = $1`,
		id,
	)
	return scanRun(row)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	query, args, err := buildRunListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func buildRunListQuery(filter repo.RunFilter) (string, []any, error) {
	if strings.TrimSpace(filter.ProgrammeID) == "" {
		return "", nil, fmt.Errorf("programme id is required")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	args = append(args, strings.TrimSpace(filter.ProgrammeID))
	clauses = append(clauses, fmt.Sprintf("programme_id = $%d", len(args)))
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + selectRunColumns + ` FROM programme_runs WHERE ` +
		strings.Join(clauses, " AND ") + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

// MarkRunning is the storage-level re-entry guard: only a queued run can be
// claimed, and the conditional update makes the claim atomic.
func (s *RunStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("run id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE programme_runs
		 SET status = $1, started_at = $2, error_message = NULL
		 WHERE run_id = $3 AND status = $4`,
		string(domain.RunStatusRunning),
		startedAt.UTC(),
		id,
		string(domain.RunStatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("mark run running: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark run running: %w", err)
	}
	return rows > 0, nil
}

// FinalizeRun stamps the terminal status and the finalize-time payloads. The
// WHERE clause refuses to touch a run that already reached a terminal state.
func (s *RunStore) FinalizeRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	if !run.Status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", run.Status)
	}
	outputJSON, err := encodeMetadata(run.OutputSummary)
	if err != nil {
		return fmt.Errorf("encode output summary: %w", err)
	}
	lineageJSON, err := encodeLineage(run.Lineage)
	if err != nil {
		return fmt.Errorf("encode lineage: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE programme_runs
		 SET status = $1, finished_at = $2, output_summary = $3, lineage = $4,
		     error_message = $5, log_excerpt = $6
		 WHERE run_id = $7 AND status IN ($8, $9)`,
		string(run.Status),
		nullTime(run.FinishedAt),
		outputJSON,
		lineageJSON,
		nullIfEmpty(run.ErrorMessage),
		nullIfEmpty(run.LogExcerpt),
		strings.TrimSpace(run.ID),
		string(domain.RunStatusQueued),
		string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return requireRowAffected(res, "finalize run")
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var programmeCode sql.NullString
	var runType string
	var trigger string
	var status string
	var requestedBy sql.NullString
	var startedAt sql.NullTime
	var finishedAt sql.NullTime
	var inputJSON []byte
	var outputJSON []byte
	var lineageJSON []byte
	var errorMessage sql.NullString
	var logExcerpt sql.NullString
	if err := row.Scan(
		&run.ID,
		&run.ProgrammeID,
		&programmeCode,
		&runType,
		&trigger,
		&run.DryRun,
		&status,
		&requestedBy,
		&startedAt,
		&finishedAt,
		&inputJSON,
		&outputJSON,
		&lineageJSON,
		&errorMessage,
		&logExcerpt,
		&run.CreatedAt,
	); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	run.RunType = domain.NormalizeRunType(runType)
	run.Trigger = domain.RunTrigger(trigger)
	run.Status = domain.NormalizeRunStatus(status)
	if programmeCode.Valid {
		run.ProgrammeCode = programmeCode.String
	}
	if requestedBy.Valid {
		run.RequestedBy = requestedBy.String
	}
	run.StartedAt = timePtr(startedAt)
	run.FinishedAt = timePtr(finishedAt)
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	if logExcerpt.Valid {
		run.LogExcerpt = logExcerpt.String
	}
	input, err := decodeMetadata(inputJSON)
	if err != nil {
		return domain.Run{}, fmt.Errorf("decode input summary: %w", err)
	}
	output, err := decodeMetadata(outputJSON)
	if err != nil {
		return domain.Run{}, fmt.Errorf("decode output summary: %w", err)
	}
	run.InputSummary = input
	run.OutputSummary = output
	lineage, err := decodeLineage(lineageJSON)
	if err != nil {
		return domain.Run{}, fmt.Errorf("decode lineage: %w", err)
	}
	run.Lineage = lineage
	return run, nil
}

func encodeLineage(lineage []domain.LineageEntry) ([]byte, error) {
	if lineage == nil {
		lineage = []domain.LineageEntry{}
	}
	return json.Marshal(lineage)
}

func decodeLineage(raw []byte) ([]domain.LineageEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []domain.LineageEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
