package domain

import (
	"testing"
	"time"
)

func TestNextRunAtWeekly(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	next := NextRunAt(CadenceWeekly, from)
	if next == nil {
		t.Fatalf("expected next run time")
	}
	if !next.Equal(from.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expected from+7d, got %s", next)
	}
}

func TestNextRunAtAnnual(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	next := NextRunAt(CadenceAnnual, from)
	if next == nil {
		t.Fatalf("expected next run time")
	}
	if !next.Equal(from.Add(365 * 24 * time.Hour)) {
		t.Fatalf("expected from+365d, got %s", next)
	}
}

func TestNextRunAtManualAndAdHocReturnNil(t *testing.T) {
	from := time.Now().UTC()
	if NextRunAt(CadenceManual, from) != nil {
		t.Fatalf("manual cadence must not schedule")
	}
	if NextRunAt(CadenceAdHoc, from) != nil {
		t.Fatalf("adhoc cadence must not schedule")
	}
}

func TestNextRunAtMonthlyCrossesMonthBoundary(t *testing.T) {
	from := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	next := NextRunAt(CadenceMonthly, from)
	if next == nil {
		t.Fatalf("expected next run time")
	}
	if !next.Equal(from.AddDate(0, 1, 0)) {
		t.Fatalf("expected from+1mo, got %s", next)
	}
}

func TestNormalizeCadence(t *testing.T) {
	if NormalizeCadence(" Weekly ") != CadenceWeekly {
		t.Fatalf("expected weekly")
	}
	if NormalizeCadence("ad-hoc") != CadenceAdHoc {
		t.Fatalf("expected adhoc")
	}
	if NormalizeCadence("fortnightly") != "" {
		t.Fatalf("expected empty for unknown cadence")
	}
}
