package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/auditlog"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/lineageevent"
)

// AuditAppender writes append-only audit records with an integrity hash.
type AuditAppender struct {
	db DB
}

func NewAuditAppender(db DB) *AuditAppender {
	if db == nil {
		return nil
	}
	return &AuditAppender{db: db}
}

func (a *AuditAppender) Append(ctx context.Context, event domain.AuditEvent) (int64, error) {
	if a == nil || a.db == nil {
		return 0, fmt.Errorf("audit appender not initialized")
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}
	return auditlog.Insert(ctx, a.db, auditlog.Event{
		OccurredAt:   event.OccurredAt,
		Actor:        event.Actor,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		RequestID:    event.RequestID,
		Payload:      event.Payload,
	})
}

// LineageAppender records provenance edges between catalog entities.
type LineageAppender struct {
	db DB
}

func NewLineageAppender(db DB) *LineageAppender {
	if db == nil {
		return nil
	}
	return &LineageAppender{db: db}
}

func (a *LineageAppender) AppendLineage(ctx context.Context, actor, subjectType, subjectID, predicate, objectType, objectID string, metadata domain.Metadata) error {
	if a == nil || a.db == nil {
		return fmt.Errorf("lineage appender not initialized")
	}
	_, err := lineageevent.Insert(ctx, a.db, lineageevent.Event{
		Actor:     actor,
		Subject:   lineageevent.Ref{Kind: lineageevent.Kind(strings.TrimSpace(subjectType)), ID: subjectID},
		Predicate: lineageevent.Predicate(strings.TrimSpace(predicate)),
		Object:    lineageevent.Ref{Kind: lineageevent.Kind(strings.TrimSpace(objectType)), ID: objectID},
		Metadata:  metadata,
	})
	return err
}
