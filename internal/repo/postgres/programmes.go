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

type ProgrammeStore struct {
	db DB
}

const selectProgrammeColumns = `programme_id, code, name, domain_tag, active, scheduler_enabled,
	cadence, last_run_at, next_run_at, pipeline, min_dataset_links, min_indicator_links,
	method_profiles, metadata, created_at`

func NewProgrammeStore(db DB) *ProgrammeStore {
	if db == nil {
		return nil
	}
	return &ProgrammeStore{db: db}
}

func (s *ProgrammeStore) GetProgramme(ctx context.Context, id string) (domain.Programme, error) {
	if s == nil || s.db == nil {
		return domain.Programme{}, fmt.Errorf("programme store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Programme{}, fmt.Errorf("programme id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+selectProgrammeColumns+` FROM programmes WHERE programme_id = $1`,
		id,
	)
	return scanProgramme(row)
}

func (s *ProgrammeStore) GetProgrammeByCode(ctx context.Context, code string) (domain.Programme, error) {
	if s == nil || s.db == nil {
		return domain.Programme{}, fmt.Errorf("programme store not initialized")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Programme{}, fmt.Errorf("programme code is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+selectProgrammeColumns+` FROM programmes WHERE code = $1`,
		code,
	)
	return scanProgramme(row)
}

// ListDue selects active, scheduler-enabled programmes whose next run time is
// unset or has elapsed, earliest first with the programme code as tie-break.
func (s *ProgrammeStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Programme, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("programme store not initialized")
	}
	query, args := buildListDueQuery(now, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due programmes: %w", err)
	}
	defer rows.Close()

	programmes := make([]domain.Programme, 0)
	for rows.Next() {
		programme, err := scanProgramme(rows)
		if err != nil {
			return nil, fmt.Errorf("scan programme: %w", err)
		}
		programmes = append(programmes, programme)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due programmes: %w", err)
	}
	return programmes, nil
}

func buildListDueQuery(now time.Time, limit int) (string, []any) {
	args := []any{now.UTC()}
	query := `SELECT ` + selectProgrammeColumns + `
	 FROM programmes
	 WHERE active AND scheduler_enabled
	   AND (next_run_at IS NULL OR next_run_at <= $1)
	 ORDER BY next_run_at ASC NULLS FIRST, code ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *ProgrammeStore) UpdateSchedule(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("programme store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("programme id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE programmes SET last_run_at = $1, next_run_at = $2 WHERE programme_id = $3`,
		lastRunAt.UTC(),
		nullTime(nextRunAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("update programme schedule: %w", err)
	}
	return requireRowAffected(res, "update programme schedule")
}

// LinkCounts snapshots the catalog links a run captures at creation time.
func (s *ProgrammeStore) LinkCounts(ctx context.Context, id string) (domain.LinkCounts, error) {
	if s == nil || s.db == nil {
		return domain.LinkCounts{}, fmt.Errorf("programme store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.LinkCounts{}, fmt.Errorf("programme id is required")
	}
	var counts domain.LinkCounts
	row := s.db.QueryRowContext(
		ctx,
		`SELECT
			(SELECT COUNT(*) FROM programme_dataset_links WHERE programme_id = $1),
			(SELECT COUNT(*) FROM programme_indicator_links WHERE programme_id = $1)`,
		id,
	)
	if err := row.Scan(&counts.Datasets, &counts.Indicators); err != nil {
		return domain.LinkCounts{}, fmt.Errorf("count programme links: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgramme(row rowScanner) (domain.Programme, error) {
	var programme domain.Programme
	var cadence string
	var domainTag sql.NullString
	var lastRunAt sql.NullTime
	var nextRunAt sql.NullTime
	var pipeline []byte
	var methodProfiles sql.NullString
	var metadataJSON []byte
	if err := row.Scan(
		&programme.ID,
		&programme.Code,
		&programme.Name,
		&domainTag,
		&programme.Active,
		&programme.SchedulerEnabled,
		&cadence,
		&lastRunAt,
		&nextRunAt,
		&pipeline,
		&programme.MinDatasetLinks,
		&programme.MinIndicatorLinks,
		&methodProfiles,
		&metadataJSON,
		&programme.CreatedAt,
	); err != nil {
		return domain.Programme{}, handleNotFound(err)
	}
	programme.Cadence = domain.NormalizeCadence(cadence)
	if domainTag.Valid {
		programme.DomainTag = domainTag.String
	}
	programme.LastRunAt = timePtr(lastRunAt)
	programme.NextRunAt = timePtr(nextRunAt)
	programme.Pipeline = pipeline
	if methodProfiles.Valid && strings.TrimSpace(methodProfiles.String) != "" {
		parts := strings.Split(methodProfiles.String, ",")
		for _, part := range parts {
			if p := strings.TrimSpace(part); p != "" {
				programme.MethodProfiles = append(programme.MethodProfiles, p)
			}
		}
	}
	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Programme{}, fmt.Errorf("decode metadata: %w", err)
	}
	programme.Metadata = metadata
	return programme, nil
}

func requireRowAffected(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}
