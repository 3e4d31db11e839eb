package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
)

type ArtefactStore struct {
	db DB
}

const selectArtefactColumns = `artefact_id, run_id, step_id, label, object_key, media_type,
	sha256, size_bytes, metadata, created_at, created_by, integrity_sha256`

func NewArtefactStore(db DB) *ArtefactStore {
	if db == nil {
		return nil
	}
	return &ArtefactStore{db: db}
}

// UpsertArtefact inserts or overwrites the record keyed by (run, step, label).
// Rewriting a label updates the checksum and size in place, never a second row.
func (s *ArtefactStore) UpsertArtefact(ctx context.Context, artefact domain.Artefact) (domain.Artefact, error) {
	if s == nil || s.db == nil {
		return domain.Artefact{}, fmt.Errorf("artefact store not initialized")
	}
	if err := artefact.Validate(); err != nil {
		return domain.Artefact{}, err
	}
	if strings.TrimSpace(artefact.IntegritySHA256) == "" {
		return domain.Artefact{}, fmt.Errorf("integrity sha256 is required")
	}
	metadataJSON, err := encodeMetadata(artefact.Metadata)
	if err != nil {
		return domain.Artefact{}, fmt.Errorf("encode metadata: %w", err)
	}
	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO programme_run_artefacts (
			artefact_id,
			run_id,
			step_id,
			label,
			object_key,
			media_type,
			sha256,
			size_bytes,
			metadata,
			created_at,
			created_by,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (run_id, step_id, label) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			media_type = EXCLUDED.media_type,
			sha256 = EXCLUDED.sha256,
			size_bytes = EXCLUDED.size_bytes,
			metadata = EXCLUDED.metadata,
			integrity_sha256 = EXCLUDED.integrity_sha256
		RETURNING `+selectArtefactColumns,
		upsertArtefactArgs(artefact, metadataJSON)...,
	)
	stored, err := scanArtefact(row)
	if err != nil {
		return domain.Artefact{}, fmt.Errorf("upsert artefact: %w", err)
	}
	return stored, nil
}

// upsertArtefactArgs binds the insert values. A run-level artefact carries an
// empty string step_id, not NULL: NULLs are pairwise distinct in the unique
// index, so a NULL key would dodge the conflict target and duplicate rows on
// rewrite.
func upsertArtefactArgs(artefact domain.Artefact, metadataJSON []byte) []any {
	return []any{
		strings.TrimSpace(artefact.ID),
		strings.TrimSpace(artefact.RunID),
		strings.TrimSpace(artefact.StepID),
		strings.TrimSpace(artefact.Label),
		strings.TrimSpace(artefact.ObjectKey),
		nullIfEmpty(artefact.MediaType),
		strings.TrimSpace(artefact.SHA256),
		artefact.SizeBytes,
		metadataJSON,
		normalizeTime(artefact.CreatedAt),
		nullIfEmpty(artefact.CreatedBy),
		strings.TrimSpace(artefact.IntegritySHA256),
	}
}

func (s *ArtefactStore) GetArtefact(ctx context.Context, id string) (domain.Artefact, error) {
	if s == nil || s.db == nil {
		return domain.Artefact{}, fmt.Errorf("artefact store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Artefact{}, fmt.Errorf("artefact id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+selectArtefactColumns+` FROM programme_run_artefacts WHERE artefact_id = $1`,
		id,
	)
	artefact, err := scanArtefact(row)
	if err != nil {
		return domain.Artefact{}, handleNotFound(err)
	}
	return artefact, nil
}

func (s *ArtefactStore) ListArtefacts(ctx context.Context, filter repo.ArtefactFilter) ([]domain.Artefact, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("artefact store not initialized")
	}
	query, args, err := buildArtefactListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artefacts: %w", err)
	}
	defer rows.Close()

	artefacts := make([]domain.Artefact, 0)
	for rows.Next() {
		artefact, err := scanArtefact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artefact: %w", err)
		}
		artefacts = append(artefacts, artefact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artefacts: %w", err)
	}
	return artefacts, nil
}

func buildArtefactListQuery(filter repo.ArtefactFilter) (string, []any, error) {
	if strings.TrimSpace(filter.RunID) == "" {
		return "", nil, fmt.Errorf("run id is required")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	args = append(args, strings.TrimSpace(filter.RunID))
	clauses = append(clauses, fmt.Sprintf("run_id = $%d", len(args)))
	if strings.TrimSpace(filter.Label) != "" {
		args = append(args, strings.TrimSpace(filter.Label))
		clauses = append(clauses, fmt.Sprintf("label = $%d", len(args)))
	}

	query := `SELECT ` + selectArtefactColumns + ` FROM programme_run_artefacts WHERE ` +
		strings.Join(clauses, " AND ") + " ORDER BY created_at ASC, label ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func (s *ArtefactStore) CountByRun(ctx context.Context, runID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("artefact store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return 0, fmt.Errorf("run id is required")
	}
	var count int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM programme_run_artefacts WHERE run_id = $1`,
		runID,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count artefacts: %w", err)
	}
	return count, nil
}

func scanArtefact(row rowScanner) (domain.Artefact, error) {
	var artefact domain.Artefact
	var stepID sql.NullString
	var mediaType sql.NullString
	var metadataJSON []byte
	var createdBy sql.NullString
	if err := row.Scan(
		&artefact.ID,
		&artefact.RunID,
		&stepID,
		&artefact.Label,
		&artefact.ObjectKey,
		&mediaType,
		&artefact.SHA256,
		&artefact.SizeBytes,
		&metadataJSON,
		&artefact.CreatedAt,
		&createdBy,
		&artefact.IntegritySHA256,
	); err != nil {
		return domain.Artefact{}, err
	}
	if stepID.Valid {
		artefact.StepID = stepID.String
	}
	if mediaType.Valid {
		artefact.MediaType = mediaType.String
	}
	if createdBy.Valid {
		artefact.CreatedBy = createdBy.String
	}
	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Artefact{}, fmt.Errorf("decode metadata: %w", err)
	}
	artefact.Metadata = metadata
	return artefact, nil
}
