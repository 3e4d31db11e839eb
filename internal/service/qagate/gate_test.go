package qagate

import (
	"context"
	"testing"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
)

type fakeQAResults struct {
	created []domain.QAResult
}

func (f *fakeQAResults) CreateQAResult(_ context.Context, result domain.QAResult) error {
	f.created = append(f.created, result)
	return nil
}

func (f *fakeQAResults) ListByRun(_ context.Context, runID string) ([]domain.QAResult, error) {
	out := make([]domain.QAResult, 0)
	for _, result := range f.created {
		if result.RunID == runID {
			out = append(out, result)
		}
	}
	return out, nil
}

type fakeAlerts struct {
	created []domain.Alert
}

func (f *fakeAlerts) CreateAlert(_ context.Context, alert domain.Alert) error {
	f.created = append(f.created, alert)
	return nil
}

func (f *fakeAlerts) ListAlerts(_ context.Context, _ repo.AlertFilter) ([]domain.Alert, error) {
	return f.created, nil
}

func (f *fakeAlerts) CountOpenByProgramme(_ context.Context, programmeID string) (int, error) {
	count := 0
	for _, alert := range f.created {
		if alert.ProgrammeID == programmeID && alert.State == domain.AlertStateOpen {
			count++
		}
	}
	return count, nil
}

func (f *fakeAlerts) ResolveAlert(_ context.Context, id, resolvedBy string, resolvedAt time.Time) error {
	for i := range f.created {
		if f.created[i].ID == id {
			f.created[i].State = domain.AlertStateResolved
			f.created[i].ResolvedBy = resolvedBy
			f.created[i].ResolvedAt = &resolvedAt
			return nil
		}
	}
	return repo.ErrNotFound
}

func testRun() domain.Run {
	return domain.Run{ID: "run-1", ProgrammeID: "prog-1"}
}

func TestEvaluateThresholdsPass(t *testing.T) {
	results := &fakeQAResults{}
	alerts := &fakeAlerts{}
	gate, err := NewGate(results, alerts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	programme := domain.Programme{ID: "prog-1", Code: "wetlands"}
	result, err := gate.EvaluateThresholds(context.Background(), testRun(), "step-1", programme, domain.LinkCounts{Datasets: 2, Indicators: 1}, "tester")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.QAStatusPass {
		t.Fatalf("expected pass, got %q", result.Status)
	}
	if len(results.created) != 1 {
		t.Fatalf("expected 1 recorded result, got %d", len(results.created))
	}
	if len(alerts.created) != 0 {
		t.Fatalf("expected no alerts, got %d", len(alerts.created))
	}
}

func TestEvaluateThresholdsFailRaisesOneAlert(t *testing.T) {
	results := &fakeQAResults{}
	alerts := &fakeAlerts{}
	gate, err := NewGate(results, alerts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	programme := domain.Programme{ID: "prog-1", Code: "wetlands", MinDatasetLinks: 2, MinIndicatorLinks: 3}
	result, err := gate.EvaluateThresholds(context.Background(), testRun(), "step-1", programme, domain.LinkCounts{Datasets: 1, Indicators: 0}, "tester")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.QAStatusFail {
		t.Fatalf("expected fail, got %q", result.Status)
	}
	unmet, ok := result.Details["unmet"].([]string)
	if !ok || len(unmet) != 2 {
		t.Fatalf("expected both minimums listed, got %v", result.Details["unmet"])
	}

	if len(alerts.created) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts.created))
	}
	alert := alerts.created[0]
	if alert.Severity != domain.AlertSeverityWarning {
		t.Fatalf("expected warning severity, got %q", alert.Severity)
	}
	if alert.State != domain.AlertStateOpen {
		t.Fatalf("expected open state, got %q", alert.State)
	}
	if alert.ProgrammeID != "prog-1" || alert.RunID != "run-1" {
		t.Fatalf("alert not tied to programme and run: %+v", alert)
	}
	if alert.Code != AlertCodeThresholdBreach {
		t.Fatalf("unexpected alert code %q", alert.Code)
	}
}

func TestClassifyThresholdsDefaultsToOne(t *testing.T) {
	programme := domain.Programme{ID: "prog-1", Code: "wetlands"}

	status, _, _ := ClassifyThresholds(programme, domain.LinkCounts{Datasets: 0, Indicators: 1})
	if status != domain.QAStatusFail {
		t.Fatalf("expected fail for zero dataset links, got %q", status)
	}
	status, _, _ = ClassifyThresholds(programme, domain.LinkCounts{Datasets: 1, Indicators: 1})
	if status != domain.QAStatusPass {
		t.Fatalf("expected pass at the default minimum, got %q", status)
	}
}

func TestEvaluateSpatialLayers(t *testing.T) {
	results := &fakeQAResults{}
	gate, err := NewGate(results, &fakeAlerts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	layers := []SpatialLayer{
		{Name: "habitats", FeatureCount: 10, HasBoundingBox: true},
		{Name: "buffers", FeatureCount: 0, HasBoundingBox: true},
		{Name: "sites", FeatureCount: 5, InvalidGeometries: 2, HasBoundingBox: true},
		{Name: "zones", FeatureCount: 3, HasBoundingBox: false},
	}
	recorded, err := gate.EvaluateSpatialLayers(context.Background(), testRun(), "step-2", layers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorded) != 4 {
		t.Fatalf("expected a result per layer, got %d", len(recorded))
	}
	want := []domain.QAStatus{
		domain.QAStatusPass,
		domain.QAStatusFail,
		domain.QAStatusFail,
		domain.QAStatusWarn,
	}
	for i, status := range want {
		if recorded[i].Status != status {
			t.Fatalf("layer %q: expected %q, got %q", layers[i].Name, status, recorded[i].Status)
		}
	}
	if len(results.created) != 4 {
		t.Fatalf("expected all results persisted, got %d", len(results.created))
	}
}

func TestStepStatusForResults(t *testing.T) {
	warnOnly := []domain.QAResult{
		{Code: CodeLinkThresholds, Status: domain.QAStatusPass},
		{Code: CodePrefixSpatialLayer + "zones", Status: domain.QAStatusWarn},
	}
	if got := StepStatusForResults(warnOnly); got != domain.StepStatusSucceeded {
		t.Fatalf("warnings should not block, got %q", got)
	}

	thresholdFail := append(warnOnly, domain.QAResult{Code: CodeLinkThresholds, Status: domain.QAStatusFail})
	if got := StepStatusForResults(thresholdFail); got != domain.StepStatusBlocked {
		t.Fatalf("threshold breaches should block, got %q", got)
	}

	structuralFail := append(warnOnly, domain.QAResult{Code: CodePrefixSpatialLayer + "sites", Status: domain.QAStatusFail})
	if got := StepStatusForResults(structuralFail); got != domain.StepStatusFailed {
		t.Fatalf("structural layer defects should fail, got %q", got)
	}

	both := append(thresholdFail, domain.QAResult{Code: CodePrefixSpatialLayer + "sites", Status: domain.QAStatusFail})
	if got := StepStatusForResults(both); got != domain.StepStatusFailed {
		t.Fatalf("structural defects should outrank threshold breaches, got %q", got)
	}
}
