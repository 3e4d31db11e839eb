// Package publish pushes finished run outputs to the public catalog area of
// the object store.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/runs"
	store "github.com/biomonitor-labs/biomonitor-go/internal/storage/objectstore"
)

// CatalogPublisher copies every artefact a run produced into the public
// catalog prefix of the artefacts bucket, where downstream consumers read.
type CatalogPublisher struct {
	artefacts repo.ArtefactRepository
	objects   store.Store
	bucket    string
	prefix    string
}

func NewCatalogPublisher(artefacts repo.ArtefactRepository, objects store.Store, bucket, prefix string) (*CatalogPublisher, error) {
	if artefacts == nil {
		return nil, errors.New("artefact repository is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "public"
	}
	return &CatalogPublisher{
		artefacts: artefacts,
		objects:   objects,
		bucket:    bucket,
		prefix:    prefix,
	}, nil
}

// Publish copies the run's artefacts under the catalog prefix. The target key
// keeps the per-run layout so step artefacts with the same label never clash.
func (p *CatalogPublisher) Publish(ctx context.Context, programme domain.Programme, run domain.Run) (runs.PublishResult, error) {
	if p == nil || p.objects == nil {
		return runs.PublishResult{}, errors.New("catalog publisher not initialized")
	}
	list, err := p.artefacts.ListArtefacts(ctx, repo.ArtefactFilter{RunID: run.ID})
	if err != nil {
		return runs.PublishResult{}, fmt.Errorf("list run artefacts: %w", err)
	}

	destination := p.bucket + "/" + p.prefix
	for _, artefact := range list {
		if err := p.copyArtefact(ctx, programme, artefact); err != nil {
			return runs.PublishResult{}, fmt.Errorf("publish artefact %s: %w", artefact.Label, err)
		}
	}
	return runs.PublishResult{Destination: destination, Items: len(list)}, nil
}

func (p *CatalogPublisher) copyArtefact(ctx context.Context, programme domain.Programme, artefact domain.Artefact) error {
	body, _, err := p.objects.Get(ctx, p.bucket, artefact.ObjectKey)
	if err != nil {
		return err
	}
	defer body.Close()

	target := p.targetKey(programme, artefact)
	return p.objects.Put(ctx, p.bucket, target, body, artefact.SizeBytes, artefact.MediaType)
}

func (p *CatalogPublisher) targetKey(programme domain.Programme, artefact domain.Artefact) string {
	rest := strings.TrimPrefix(artefact.ObjectKey, "runs/")
	return fmt.Sprintf("%s/%s/%s", p.prefix, programme.Code, rest)
}
