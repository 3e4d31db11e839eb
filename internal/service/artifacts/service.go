package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
	store "github.com/biomonitor-labs/biomonitor-go/internal/storage/objectstore"
)

// WriteInput describes one artefact write. StepID and StepKey are empty for
// run-level artefacts such as the run report.
type WriteInput struct {
	RunID     string
	StepID    string
	StepKey   string
	Label     string
	Body      []byte
	MediaType string
	Metadata  domain.Metadata
	Actor     string
}

// Writer is the narrow surface the run executor depends on.
type Writer interface {
	WriteArtifact(ctx context.Context, input WriteInput) (domain.Artefact, error)
}

// Service persists run outputs as content-addressed objects. Writing the same
// label twice overwrites the stored bytes and updates the single record.
type Service struct {
	repo   repo.ArtefactRepository
	store  store.Store
	bucket string
	now    func() time.Time
}

func NewService(artefacts repo.ArtefactRepository, objects store.Store, bucket string) (*Service, error) {
	if artefacts == nil {
		return nil, errors.New("artefact repository is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Service{
		repo:   artefacts,
		store:  objects,
		bucket: bucket,
		now:    time.Now,
	}, nil
}

func (s *Service) WriteArtifact(ctx context.Context, input WriteInput) (domain.Artefact, error) {
	if s == nil || s.repo == nil || s.store == nil {
		return domain.Artefact{}, errors.New("artefact service not initialized")
	}
	runID := strings.TrimSpace(input.RunID)
	if runID == "" {
		return domain.Artefact{}, errors.New("run id is required")
	}
	label := strings.TrimSpace(input.Label)
	if label == "" {
		return domain.Artefact{}, errors.New("artefact label is required")
	}
	stepID := strings.TrimSpace(input.StepID)
	stepKey := strings.TrimSpace(input.StepKey)
	if (stepID == "") != (stepKey == "") {
		return domain.Artefact{}, errors.New("step id and step key must be set together")
	}
	metadata := input.Metadata
	if metadata == nil {
		metadata = domain.Metadata{}
	}

	checksum := sha256.Sum256(input.Body)
	checksumHex := hex.EncodeToString(checksum[:])
	objectKey := ObjectKey(runID, stepKey, label)
	now := s.now().UTC()

	if err := s.store.Put(ctx, s.bucket, objectKey, bytes.NewReader(input.Body), int64(len(input.Body)), input.MediaType); err != nil {
		return domain.Artefact{}, fmt.Errorf("put object: %w", err)
	}

	integrity, err := artefactIntegritySHA256(artefactIntegrityInput{
		RunID:     runID,
		StepID:    stepID,
		Label:     label,
		ObjectKey: objectKey,
		MediaType: strings.TrimSpace(input.MediaType),
		SHA256:    checksumHex,
		SizeBytes: int64(len(input.Body)),
		Metadata:  metadata,
		CreatedBy: strings.TrimSpace(input.Actor),
	})
	if err != nil {
		return domain.Artefact{}, fmt.Errorf("integrity: %w", err)
	}

	stored, err := s.repo.UpsertArtefact(ctx, domain.Artefact{
		ID:              uuid.NewString(),
		RunID:           runID,
		StepID:          stepID,
		Label:           label,
		ObjectKey:       objectKey,
		MediaType:       strings.TrimSpace(input.MediaType),
		SHA256:          checksumHex,
		SizeBytes:       int64(len(input.Body)),
		Metadata:        metadata,
		CreatedAt:       now,
		CreatedBy:       strings.TrimSpace(input.Actor),
		IntegritySHA256: integrity,
	})
	if err != nil {
		return domain.Artefact{}, err
	}
	return stored, nil
}

// ObjectKey derives the deterministic storage key for a run artefact.
func ObjectKey(runID, stepKey, label string) string {
	if strings.TrimSpace(stepKey) == "" {
		return fmt.Sprintf("runs/%s/%s", runID, label)
	}
	return fmt.Sprintf("runs/%s/steps/%s/%s", runID, stepKey, label)
}
