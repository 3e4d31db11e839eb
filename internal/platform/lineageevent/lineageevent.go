package lineageevent

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names a catalog entity class that can sit on either end of a lineage
// edge.
type Kind string

const (
	KindProgramme    Kind = "programme"
	KindProgrammeRun Kind = "programme_run"
	KindArtefact     Kind = "artefact"
)

// Predicate names the relation an edge asserts from subject to object.
type Predicate string

const (
	PredicateExecutedFor Predicate = "executed_for"
	PredicateProduced    Predicate = "produced"
)

// Ref identifies one entity on a lineage edge.
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) validate(side string) error {
	switch r.Kind {
	case KindProgramme, KindProgrammeRun, KindArtefact:
	default:
		return fmt.Errorf("%s kind %q is not a lineage kind", side, r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%s id is required", side)
	}
	return nil
}

// Event is one provenance edge, e.g.
// programme_run --executed_for--> programme,
// programme_run --produced--> artefact.
type Event struct {
	OccurredAt time.Time
	Actor      string
	RequestID  string
	Subject    Ref
	Predicate  Predicate
	Object     Ref
	Metadata   any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("occurred at is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("actor is required")
	}
	if err := e.Subject.validate("subject"); err != nil {
		return err
	}
	switch e.Predicate {
	case PredicateExecutedFor, PredicateProduced:
	default:
		return fmt.Errorf("predicate %q is not a lineage predicate", e.Predicate)
	}
	return e.Object.validate("object")
}

func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	integrity, err := ComputeIntegritySHA256(event, metadataJSON)
	if err != nil {
		return 0, err
	}

	var requestID sql.NullString
	if strings.TrimSpace(event.RequestID) != "" {
		requestID = sql.NullString{String: strings.TrimSpace(event.RequestID), Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO lineage_events (
			occurred_at,
			actor,
			request_id,
			subject_type,
			subject_id,
			predicate,
			object_type,
			object_id,
			metadata,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING event_id`,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.Actor),
		requestID,
		string(event.Subject.Kind),
		strings.TrimSpace(event.Subject.ID),
		string(event.Predicate),
		string(event.Object.Kind),
		strings.TrimSpace(event.Object.ID),
		metadataJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lineage event: %w", err)
	}
	return id, nil
}

func ComputeIntegritySHA256(event Event, metadataJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt  time.Time       `json:"occurred_at"`
		Actor       string          `json:"actor"`
		RequestID   string          `json:"request_id,omitempty"`
		SubjectType string          `json:"subject_type"`
		SubjectID   string          `json:"subject_id"`
		Predicate   string          `json:"predicate"`
		ObjectType  string          `json:"object_type"`
		ObjectID    string          `json:"object_id"`
		Metadata    json.RawMessage `json:"metadata"`
	}

	in := integrityInput{
		OccurredAt:  event.OccurredAt.UTC(),
		Actor:       strings.TrimSpace(event.Actor),
		RequestID:   strings.TrimSpace(event.RequestID),
		SubjectType: string(event.Subject.Kind),
		SubjectID:   strings.TrimSpace(event.Subject.ID),
		Predicate:   string(event.Predicate),
		ObjectType:  string(event.Object.Kind),
		ObjectID:    strings.TrimSpace(event.Object.ID),
		Metadata:    metadataJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
