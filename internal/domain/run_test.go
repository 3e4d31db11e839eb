package domain

import "testing"

func TestRunStatusForwardOnly(t *testing.T) {
	if !CanTransitionRunStatus(RunStatusQueued, RunStatusRunning) {
		t.Fatalf("queued -> running must be allowed")
	}
	if !CanTransitionRunStatus(RunStatusRunning, RunStatusSucceeded) {
		t.Fatalf("running -> succeeded must be allowed")
	}
	if !CanTransitionRunStatus(RunStatusRunning, RunStatusBlocked) {
		t.Fatalf("running -> blocked must be allowed")
	}
	if CanTransitionRunStatus(RunStatusRunning, RunStatusQueued) {
		t.Fatalf("running -> queued must be rejected")
	}
	if CanTransitionRunStatus(RunStatusSucceeded, RunStatusRunning) {
		t.Fatalf("terminal states must not transition")
	}
	if CanTransitionRunStatus(RunStatusFailed, RunStatusSucceeded) {
		t.Fatalf("terminal states must not transition")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	for _, status := range []RunStatus{RunStatusSucceeded, RunStatusFailed, RunStatusBlocked, RunStatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("%s must be terminal", status)
		}
	}
	for _, status := range []RunStatus{RunStatusQueued, RunStatusRunning} {
		if status.IsTerminal() {
			t.Fatalf("%s must not be terminal", status)
		}
	}
}

func TestNormalizeRunStatus(t *testing.T) {
	if NormalizeRunStatus("Canceled") != RunStatusCancelled {
		t.Fatalf("expected cancelled")
	}
	if NormalizeRunStatus("pending") != RunStatusQueued {
		t.Fatalf("expected queued")
	}
	if NormalizeRunStatus("bogus") != "" {
		t.Fatalf("expected empty for unknown status")
	}
}

func TestRunValidate(t *testing.T) {
	run := Run{ID: "run-1", ProgrammeID: "prog-1", RunType: RunTypeFull, Status: RunStatusQueued}
	if err := run.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run.ProgrammeID = ""
	if err := run.Validate(); err == nil {
		t.Fatalf("expected error for missing programme id")
	}
}
