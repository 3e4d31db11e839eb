package scheduler

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/artifacts"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/qagate"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/runs"
)

type fakeProgrammes struct {
	programmes    []domain.Programme
	counts        domain.LinkCounts
	failCountsFor string
	schedules     int
}

func (f *fakeProgrammes) GetProgramme(_ context.Context, id string) (domain.Programme, error) {
	for _, programme := range f.programmes {
		if programme.ID == id {
			return programme, nil
		}
	}
	return domain.Programme{}, repo.ErrNotFound
}

func (f *fakeProgrammes) GetProgrammeByCode(_ context.Context, code string) (domain.Programme, error) {
	for _, programme := range f.programmes {
		if programme.Code == code {
			return programme, nil
		}
	}
	return domain.Programme{}, repo.ErrNotFound
}

func (f *fakeProgrammes) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Programme, error) {
	due := make([]domain.Programme, 0)
	for _, programme := range f.programmes {
		if !programme.Active || !programme.SchedulerEnabled {
			continue
		}
		if programme.NextRunAt == nil || !programme.NextRunAt.After(now) {
			due = append(due, programme)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].NextRunAt, due[j].NextRunAt
		if a == nil {
			return true
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeProgrammes) UpdateSchedule(_ context.Context, _ string, _ time.Time, _ *time.Time) error {
	f.schedules++
	return nil
}

func (f *fakeProgrammes) LinkCounts(_ context.Context, id string) (domain.LinkCounts, error) {
	if f.failCountsFor != "" && f.failCountsFor == id {
		return domain.LinkCounts{}, fmt.Errorf("catalog unavailable")
	}
	return f.counts, nil
}

type fakeRuns struct {
	runs map[string]domain.Run
}

func (f *fakeRuns) CreateRun(_ context.Context, run domain.Run) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (domain.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRuns) ListRuns(_ context.Context, _ repo.RunFilter) ([]domain.Run, error) {
	return nil, nil
}

func (f *fakeRuns) MarkRunning(_ context.Context, id string, startedAt time.Time) (bool, error) {
	run, ok := f.runs[id]
	if !ok || run.Status != domain.RunStatusQueued {
		return false, nil
	}
	run.Status = domain.RunStatusRunning
	run.StartedAt = &startedAt
	f.runs[id] = run
	return true, nil
}

func (f *fakeRuns) FinalizeRun(_ context.Context, run domain.Run) error {
	f.runs[run.ID] = run
	return nil
}

type fakeSteps struct{}

func (fakeSteps) CreateStep(_ context.Context, _ domain.Step) error       { return nil }
func (fakeSteps) UpdateStepResult(_ context.Context, _ domain.Step) error { return nil }
func (fakeSteps) ListByRun(_ context.Context, _ string) ([]domain.Step, error) {
	return nil, nil
}

type fakeQAResults struct{}

func (fakeQAResults) CreateQAResult(_ context.Context, _ domain.QAResult) error { return nil }
func (fakeQAResults) ListByRun(_ context.Context, _ string) ([]domain.QAResult, error) {
	return nil, nil
}

type fakeAlerts struct{}

func (fakeAlerts) CreateAlert(_ context.Context, _ domain.Alert) error { return nil }
func (fakeAlerts) ListAlerts(_ context.Context, _ repo.AlertFilter) ([]domain.Alert, error) {
	return nil, nil
}
func (fakeAlerts) CountOpenByProgramme(_ context.Context, _ string) (int, error) { return 0, nil }
func (fakeAlerts) ResolveAlert(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

type fakeArtefacts struct{}

func (fakeArtefacts) UpsertArtefact(_ context.Context, artefact domain.Artefact) (domain.Artefact, error) {
	return artefact, nil
}
func (fakeArtefacts) GetArtefact(_ context.Context, _ string) (domain.Artefact, error) {
	return domain.Artefact{}, repo.ErrNotFound
}
func (fakeArtefacts) ListArtefacts(_ context.Context, _ repo.ArtefactFilter) ([]domain.Artefact, error) {
	return nil, nil
}
func (fakeArtefacts) CountByRun(_ context.Context, _ string) (int, error) { return 0, nil }

type fakeWriter struct{ seq int }

func (f *fakeWriter) WriteArtifact(_ context.Context, input artifacts.WriteInput) (domain.Artefact, error) {
	f.seq++
	return domain.Artefact{ID: fmt.Sprintf("artefact-%d", f.seq), RunID: input.RunID, Label: input.Label}, nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(_ context.Context, _ domain.Programme, _ domain.Run) (runs.PublishResult, error) {
	return runs.PublishResult{Destination: "catalog"}, nil
}

func timeAt(hour int) *time.Time {
	t := time.Date(2026, 4, 1, hour, 0, 0, 0, time.UTC)
	return &t
}

func newScheduler(t *testing.T, programmes *fakeProgrammes, limit int) (*Scheduler, *fakeRuns) {
	t.Helper()
	runsRepo := &fakeRuns{runs: map[string]domain.Run{}}
	qaResults := fakeQAResults{}
	alerts := fakeAlerts{}
	gate, err := qagate.NewGate(qaResults, alerts)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	writer := &fakeWriter{}
	registry := runs.DefaultRegistry(runs.BehaviorDeps{
		Artifacts: writer,
		Gate:      gate,
		Publisher: fakePublisher{},
	})
	runner, err := runs.NewService(runs.Deps{
		Programmes: programmes,
		Runs:       runsRepo,
		Steps:      fakeSteps{},
		QAResults:  qaResults,
		Artefacts:  fakeArtefacts{},
		Alerts:     alerts,
		Writer:     writer,
		Registry:   registry,
	})
	if err != nil {
		t.Fatalf("run service: %v", err)
	}
	sched, err := New(programmes, runner, nil, limit)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return sched, runsRepo
}

func dueProgramme(id, code string, next *time.Time) domain.Programme {
	return domain.Programme{
		ID:               id,
		Code:             code,
		Name:             code,
		Active:           true,
		SchedulerEnabled: true,
		Cadence:          domain.CadenceDaily,
		NextRunAt:        next,
	}
}

func TestProcessDueProgrammesRunsScheduledTrigger(t *testing.T) {
	programmes := &fakeProgrammes{
		programmes: []domain.Programme{dueProgramme("prog-1", "wetlands", timeAt(6))},
		counts:     domain.LinkCounts{Datasets: 1, Indicators: 1},
	}
	sched, runsRepo := newScheduler(t, programmes, 10)

	outcomes, err := sched.ProcessDueProgrammes(context.Background(), "scheduler")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(outcomes))
	}
	if outcomes[0].Err != nil {
		t.Fatalf("unexpected outcome error: %v", outcomes[0].Err)
	}
	run := runsRepo.runs[outcomes[0].RunID]
	if run.Trigger != domain.TriggerScheduled {
		t.Fatalf("expected scheduled trigger, got %q", run.Trigger)
	}
	if !run.Status.IsTerminal() {
		t.Fatalf("expected run executed to a terminal status, got %q", run.Status)
	}
}

func TestProcessDueProgrammesHonorsBatchLimit(t *testing.T) {
	programmes := &fakeProgrammes{
		programmes: []domain.Programme{
			dueProgramme("prog-late", "seabirds", timeAt(9)),
			dueProgramme("prog-early", "wetlands", timeAt(5)),
		},
		counts: domain.LinkCounts{Datasets: 1, Indicators: 1},
	}
	sched, _ := newScheduler(t, programmes, 1)

	outcomes, err := sched.ProcessDueProgrammes(context.Background(), "scheduler")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected limit of one, got %d", len(outcomes))
	}
	if outcomes[0].ProgrammeID != "prog-early" {
		t.Fatalf("expected earliest due programme first, got %q", outcomes[0].ProgrammeID)
	}
}

func TestProcessDueProgrammesBatchIndependence(t *testing.T) {
	programmes := &fakeProgrammes{
		programmes: []domain.Programme{
			dueProgramme("prog-broken", "uplands", timeAt(5)),
			dueProgramme("prog-2", "wetlands", timeAt(6)),
		},
		counts:        domain.LinkCounts{Datasets: 1, Indicators: 1},
		failCountsFor: "prog-broken",
	}
	sched, _ := newScheduler(t, programmes, 10)

	outcomes, err := sched.ProcessDueProgrammes(context.Background(), "scheduler")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected both programmes attempted, got %d", len(outcomes))
	}
	if outcomes[0].ProgrammeID != "prog-broken" || outcomes[0].Err == nil {
		t.Fatalf("expected first programme to fail, got %+v", outcomes[0])
	}
	if outcomes[1].ProgrammeID != "prog-2" || outcomes[1].Err != nil {
		t.Fatalf("one programme's failure must not abort the batch, got %+v", outcomes[1])
	}
}
