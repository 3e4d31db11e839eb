package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
)

type QAResultStore struct {
	db DB
}

func NewQAResultStore(db DB) *QAResultStore {
	if db == nil {
		return nil
	}
	return &QAResultStore{db: db}
}

func (s *QAResultStore) CreateQAResult(ctx context.Context, result domain.QAResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("qa result store not initialized")
	}
	if err := result.Validate(); err != nil {
		return err
	}
	detailsJSON, err := encodeMetadata(result.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO programme_run_qa_results (
			qa_result_id,
			run_id,
			step_id,
			code,
			status,
			message,
			details,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(result.ID),
		strings.TrimSpace(result.RunID),
		nullIfEmpty(result.StepID),
		strings.TrimSpace(result.Code),
		string(result.Status),
		nullIfEmpty(result.Message),
		detailsJSON,
		normalizeTime(result.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert qa result: %w", err)
	}
	return nil
}

func (s *QAResultStore) ListByRun(ctx context.Context, runID string) ([]domain.QAResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("qa result store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT qa_result_id, run_id, step_id, code, status, message, details, created_at
		 FROM programme_run_qa_results
		 WHERE run_id = $1
		 ORDER BY created_at ASC, code ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list qa results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.QAResult, 0)
	for rows.Next() {
		var result domain.QAResult
		var stepID sql.NullString
		var status string
		var message sql.NullString
		var detailsJSON []byte
		if err := rows.Scan(
			&result.ID,
			&result.RunID,
			&stepID,
			&result.Code,
			&status,
			&message,
			&detailsJSON,
			&result.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan qa result: %w", err)
		}
		result.Status = domain.QAStatus(status)
		if stepID.Valid {
			result.StepID = stepID.String
		}
		if message.Valid {
			result.Message = message.String
		}
		details, err := decodeMetadata(detailsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
		result.Details = details
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list qa results: %w", err)
	}
	return results, nil
}
