package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
)

func TestBuildListDueQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	query, args := buildListDueQuery(now, 25)
	if !strings.Contains(query, "active AND scheduler_enabled") {
		t.Fatalf("expected active and scheduler_enabled guard, got %q", query)
	}
	if !strings.Contains(query, "next_run_at IS NULL OR next_run_at <= $1") {
		t.Fatalf("expected due-time clause, got %q", query)
	}
	if !strings.Contains(query, "ORDER BY next_run_at ASC NULLS FIRST, code ASC") {
		t.Fatalf("expected deterministic ordering, got %q", query)
	}
	if !strings.Contains(query, "LIMIT $2") {
		t.Fatalf("expected limit placeholder, got %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	if args[0] != now.UTC() {
		t.Fatalf("expected now as first arg, got %v", args[0])
	}
	if args[1] != 25 {
		t.Fatalf("expected limit as second arg, got %v", args[1])
	}
}

func TestBuildListDueQueryNoLimit(t *testing.T) {
	query, args := buildListDueQuery(time.Now(), 0)
	if strings.Contains(query, "LIMIT") {
		t.Fatalf("expected no limit clause, got %q", query)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
}

func TestBuildRunListQuery(t *testing.T) {
	query, args, err := buildRunListQuery(repo.RunFilter{
		ProgrammeID: "prog-1",
		Status:      domain.RunStatusFailed,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(query, "programme_id = $1") {
		t.Fatalf("expected programme filter, got %q", query)
	}
	if !strings.Contains(query, "status = $2") {
		t.Fatalf("expected status filter, got %q", query)
	}
	if !strings.Contains(query, "ORDER BY created_at DESC") {
		t.Fatalf("expected newest-first ordering, got %q", query)
	}
	if !strings.Contains(query, "LIMIT $3") {
		t.Fatalf("expected limit placeholder, got %q", query)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
}

func TestBuildRunListQueryRequiresProgramme(t *testing.T) {
	if _, _, err := buildRunListQuery(repo.RunFilter{}); err == nil {
		t.Fatal("expected error for missing programme id")
	}
}

func TestBuildArtefactListQuery(t *testing.T) {
	query, args, err := buildArtefactListQuery(repo.ArtefactFilter{
		RunID: "run-1",
		Label: "run-report.json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(query, "run_id = $1") {
		t.Fatalf("expected run filter, got %q", query)
	}
	if !strings.Contains(query, "label = $2") {
		t.Fatalf("expected label filter, got %q", query)
	}
	if strings.Contains(query, "LIMIT") {
		t.Fatalf("expected no limit clause, got %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
}

func TestUpsertArtefactArgsStepID(t *testing.T) {
	base := domain.Artefact{
		ID:              "art-1",
		RunID:           "run-1",
		Label:           "run-report.json",
		ObjectKey:       "runs/run-1/run-report.json",
		SHA256:          "abc",
		IntegritySHA256: "def",
	}

	args := upsertArtefactArgs(base, []byte(`{}`))
	if len(args) != 12 {
		t.Fatalf("expected 12 args, got %d", len(args))
	}
	if args[2] != "" {
		t.Fatalf("run-level artefact must bind empty step id, not %#v", args[2])
	}

	base.StepID = " step-1 "
	args = upsertArtefactArgs(base, []byte(`{}`))
	if args[2] != "step-1" {
		t.Fatalf("expected trimmed step id, got %#v", args[2])
	}
}

func TestBuildArtefactListQueryRequiresRun(t *testing.T) {
	if _, _, err := buildArtefactListQuery(repo.ArtefactFilter{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestBuildAlertListQuery(t *testing.T) {
	query, args, err := buildAlertListQuery(repo.AlertFilter{
		ProgrammeID: "prog-1",
		State:       domain.AlertStateOpen,
		Limit:       5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(query, "programme_id = $1") {
		t.Fatalf("expected programme filter, got %q", query)
	}
	if !strings.Contains(query, "state = $2") {
		t.Fatalf("expected state filter, got %q", query)
	}
	if !strings.Contains(query, "LIMIT $3") {
		t.Fatalf("expected limit placeholder, got %q", query)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[1] != string(domain.AlertStateOpen) {
		t.Fatalf("expected open state arg, got %v", args[1])
	}
}
