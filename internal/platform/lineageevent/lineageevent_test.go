package lineageevent

import (
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		OccurredAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Actor:      "orchestrator",
		Subject:    Ref{Kind: KindProgrammeRun, ID: "run-1"},
		Predicate:  PredicateExecutedFor,
		Object:     Ref{Kind: KindProgramme, ID: "prog-1"},
	}
}

func TestEventValidate(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := validEvent()
	event.Predicate = ""
	if err := event.Validate(); err == nil {
		t.Fatal("expected error for missing predicate")
	}

	event = validEvent()
	event.Subject.Kind = "dataset"
	if err := event.Validate(); err == nil {
		t.Fatal("expected error for unknown subject kind")
	}

	event = validEvent()
	event.Object.ID = " "
	if err := event.Validate(); err == nil {
		t.Fatal("expected error for blank object id")
	}
}

func TestComputeIntegrityChangesWithObject(t *testing.T) {
	meta := []byte(`{}`)
	first, err := ComputeIntegritySHA256(validEvent(), meta)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	other := validEvent()
	other.Object = Ref{Kind: KindArtefact, ID: "art-1"}
	other.Predicate = PredicateProduced
	second, err := ComputeIntegritySHA256(other, meta)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if first == second {
		t.Fatal("expected digest to change with the object ref")
	}
}
