package auditlog

import (
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	event := Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        "scheduler",
		Action:       "run_succeeded",
		ResourceType: "run",
		ResourceID:   "run-1",
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := event
	missing.Action = " "
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected error for missing action")
	}
}

func TestComputeIntegrityIsDeterministic(t *testing.T) {
	event := Event{
		OccurredAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Actor:        "scheduler",
		Action:       "run_succeeded",
		ResourceType: "run",
		ResourceID:   "run-1",
		RequestID:    "req-1",
	}
	payload := []byte(`{"programme_id":"prog-1"}`)
	first, err := ComputeIntegritySHA256(event, payload)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	second, err := ComputeIntegritySHA256(event, payload)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if first != second || len(first) != 64 {
		t.Fatalf("expected stable 64-char digest, got %q and %q", first, second)
	}
}
