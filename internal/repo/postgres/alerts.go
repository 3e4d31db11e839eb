package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
)

type AlertStore struct {
	db DB
}

const selectAlertColumns = `alert_id, programme_id, run_id, severity, state, code, message,
	details, created_by, created_at, resolved_by, resolved_at`

func NewAlertStore(db DB) *AlertStore {
	if db == nil {
		return nil
	}
	return &AlertStore{db: db}
}

func (s *AlertStore) CreateAlert(ctx context.Context, alert domain.Alert) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("alert store not initialized")
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	detailsJSON, err := encodeMetadata(alert.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO programme_alerts (
			alert_id,
			programme_id,
			run_id,
			severity,
			state,
			code,
			message,
			details,
			created_by,
			created_at,
			resolved_by,
			resolved_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		strings.TrimSpace(alert.ID),
		strings.TrimSpace(alert.ProgrammeID),
		nullIfEmpty(alert.RunID),
		string(alert.Severity),
		string(alert.State),
		strings.TrimSpace(alert.Code),
		nullIfEmpty(alert.Message),
		detailsJSON,
		nullIfEmpty(alert.CreatedBy),
		normalizeTime(alert.CreatedAt),
		nullIfEmpty(alert.ResolvedBy),
		nullTime(alert.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *AlertStore) ListAlerts(ctx context.Context, filter repo.AlertFilter) ([]domain.Alert, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("alert store not initialized")
	}
	query, args, err := buildAlertListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]domain.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func buildAlertListQuery(filter repo.AlertFilter) (string, []any, error) {
	if strings.TrimSpace(filter.ProgrammeID) == "" {
		return "", nil, fmt.Errorf("programme id is required")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	args = append(args, strings.TrimSpace(filter.ProgrammeID))
	clauses = append(clauses, fmt.Sprintf("programme_id = $%d", len(args)))
	if filter.State != "" {
		args = append(args, string(filter.State))
		clauses = append(clauses, fmt.Sprintf("state = $%d", len(args)))
	}

	query := `SELECT ` + selectAlertColumns + ` FROM programme_alerts WHERE ` +
		strings.Join(clauses, " AND ") + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func (s *AlertStore) CountOpenByProgramme(ctx context.Context, programmeID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("alert store not initialized")
	}
	programmeID = strings.TrimSpace(programmeID)
	if programmeID == "" {
		return 0, fmt.Errorf("programme id is required")
	}
	var count int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM programme_alerts WHERE programme_id = $1 AND state = $2`,
		programmeID,
		string(domain.AlertStateOpen),
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count open alerts: %w", err)
	}
	return count, nil
}

// ResolveAlert closes an alert once; a resolved alert stays resolved with its
// original resolver.
func (s *AlertStore) ResolveAlert(ctx context.Context, id, resolvedBy string, resolvedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("alert store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("alert id is required")
	}
	if strings.TrimSpace(resolvedBy) == "" {
		return fmt.Errorf("resolver is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE programme_alerts
		 SET state = $1, resolved_by = $2, resolved_at = $3
		 WHERE alert_id = $4 AND state <> $1`,
		string(domain.AlertStateResolved),
		strings.TrimSpace(resolvedBy),
		resolvedAt.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	return requireRowAffected(res, "resolve alert")
}

func scanAlert(row rowScanner) (domain.Alert, error) {
	var alert domain.Alert
	var runID sql.NullString
	var severity string
	var state string
	var message sql.NullString
	var detailsJSON []byte
	var createdBy sql.NullString
	var resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&alert.ProgrammeID,
		&runID,
		&severity,
		&state,
		&alert.Code,
		&message,
		&detailsJSON,
		&createdBy,
		&alert.CreatedAt,
		&resolvedBy,
		&resolvedAt,
	); err != nil {
		return domain.Alert{}, err
	}
	alert.Severity = domain.AlertSeverity(severity)
	alert.State = domain.AlertState(state)
	if runID.Valid {
		alert.RunID = runID.String
	}
	if message.Valid {
		alert.Message = message.String
	}
	if createdBy.Valid {
		alert.CreatedBy = createdBy.String
	}
	if resolvedBy.Valid {
		alert.ResolvedBy = resolvedBy.String
	}
	alert.ResolvedAt = timePtr(resolvedAt)
	return alert, nil
}
