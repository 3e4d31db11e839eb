package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
	store "github.com/biomonitor-labs/biomonitor-go/internal/storage/objectstore"
)

type fakeArtefacts struct {
	list []domain.Artefact
}

func (f *fakeArtefacts) UpsertArtefact(_ context.Context, artefact domain.Artefact) (domain.Artefact, error) {
	return artefact, nil
}

func (f *fakeArtefacts) GetArtefact(_ context.Context, _ string) (domain.Artefact, error) {
	return domain.Artefact{}, repo.ErrNotFound
}

func (f *fakeArtefacts) ListArtefacts(_ context.Context, filter repo.ArtefactFilter) ([]domain.Artefact, error) {
	out := make([]domain.Artefact, 0, len(f.list))
	for _, artefact := range f.list {
		if artefact.RunID == filter.RunID {
			out = append(out, artefact)
		}
	}
	return out, nil
}

func (f *fakeArtefacts) CountByRun(_ context.Context, _ string) (int, error) {
	return len(f.list), nil
}

type fakeObjects struct {
	objects map[string][]byte
}

func objectKey(bucket, key string) string { return bucket + "|" + key }

func (f *fakeObjects) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	blob, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[objectKey(bucket, key)] = blob
	return nil
}

func (f *fakeObjects) Get(_ context.Context, bucket, key string) (io.ReadCloser, store.ObjectInfo, error) {
	blob, ok := f.objects[objectKey(bucket, key)]
	if !ok {
		return nil, store.ObjectInfo{}, fmt.Errorf("object %s not found", key)
	}
	info := store.ObjectInfo{Key: key, Size: int64(len(blob)), LastModified: time.Now()}
	return io.NopCloser(bytes.NewReader(blob)), info, nil
}

func (f *fakeObjects) Stat(_ context.Context, bucket, key string) (store.ObjectInfo, error) {
	blob, ok := f.objects[objectKey(bucket, key)]
	if !ok {
		return store.ObjectInfo{}, fmt.Errorf("object %s not found", key)
	}
	return store.ObjectInfo{Key: key, Size: int64(len(blob))}, nil
}

func (f *fakeObjects) Exists(_ context.Context, bucket, key string) (bool, error) {
	_, ok := f.objects[objectKey(bucket, key)]
	return ok, nil
}

func (f *fakeObjects) Delete(_ context.Context, bucket, key string) error {
	delete(f.objects, objectKey(bucket, key))
	return nil
}

func TestPublishCopiesRunArtefactsToCatalogPrefix(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{
		objectKey("artefacts", "runs/run-1/steps/ingest/link-counts.json"): []byte(`{"dataset_links":2}`),
		objectKey("artefacts", "runs/run-1/summary.json"):                  []byte(`{"ok":true}`),
	}}
	artefacts := &fakeArtefacts{list: []domain.Artefact{
		{
			ID:        "a-1",
			RunID:     "run-1",
			StepID:    "step-1",
			Label:     "link-counts.json",
			ObjectKey: "runs/run-1/steps/ingest/link-counts.json",
			MediaType: "application/json",
			SizeBytes: 19,
		},
		{
			ID:        "a-2",
			RunID:     "run-1",
			Label:     "summary.json",
			ObjectKey: "runs/run-1/summary.json",
			MediaType: "application/json",
			SizeBytes: 11,
		},
	}}

	publisher, err := NewCatalogPublisher(artefacts, objects, "artefacts", "public")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	programme := domain.Programme{ID: "prog-1", Code: "wetlands"}
	run := domain.Run{ID: "run-1", ProgrammeID: "prog-1"}
	result, err := publisher.Publish(context.Background(), programme, run)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Items != 2 {
		t.Fatalf("expected two published items, got %d", result.Items)
	}
	if result.Destination != "artefacts/public" {
		t.Fatalf("unexpected destination %q", result.Destination)
	}

	wantKeys := []string{
		"public/wetlands/run-1/steps/ingest/link-counts.json",
		"public/wetlands/run-1/summary.json",
	}
	for _, key := range wantKeys {
		if _, ok := objects.objects[objectKey("artefacts", key)]; !ok {
			t.Fatalf("expected published object at %q", key)
		}
	}
}

func TestPublishFailsWhenSourceObjectMissing(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{}}
	artefacts := &fakeArtefacts{list: []domain.Artefact{
		{ID: "a-1", RunID: "run-1", Label: "summary.json", ObjectKey: "runs/run-1/summary.json"},
	}}

	publisher, err := NewCatalogPublisher(artefacts, objects, "artefacts", "public")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	_, err = publisher.Publish(context.Background(), domain.Programme{Code: "wetlands"}, domain.Run{ID: "run-1"})
	if err == nil {
		t.Fatal("expected error for missing source object")
	}
}

func TestNewCatalogPublisherDefaultsPrefix(t *testing.T) {
	publisher, err := NewCatalogPublisher(&fakeArtefacts{}, &fakeObjects{objects: map[string][]byte{}}, "artefacts", "  ")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if publisher.prefix != "public" {
		t.Fatalf("expected default prefix, got %q", publisher.prefix)
	}
}
