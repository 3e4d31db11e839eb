package domain

import (
	"strings"
	"time"
)

// Cadence controls how often a programme is due for a new run.
type Cadence string

const (
	CadenceManual    Cadence = "manual"
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceAnnual    Cadence = "annual"
	CadenceAdHoc     Cadence = "adhoc"
)

// NormalizeCadence maps free-form cadence values to canonical ones.
func NormalizeCadence(value string) Cadence {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(CadenceManual):
		return CadenceManual
	case string(CadenceDaily):
		return CadenceDaily
	case string(CadenceWeekly):
		return CadenceWeekly
	case string(CadenceMonthly):
		return CadenceMonthly
	case string(CadenceQuarterly):
		return CadenceQuarterly
	case string(CadenceAnnual), "yearly":
		return CadenceAnnual
	case string(CadenceAdHoc), "ad-hoc", "ad_hoc":
		return CadenceAdHoc
	default:
		return ""
	}
}

// NextRunAt resolves the next due time for a cadence relative to from.
// Manual and ad-hoc cadences are never due automatically and return nil.
func NextRunAt(cadence Cadence, from time.Time) *time.Time {
	from = from.UTC()
	var next time.Time
	switch cadence {
	case CadenceDaily:
		next = from.Add(24 * time.Hour)
	case CadenceWeekly:
		next = from.Add(7 * 24 * time.Hour)
	case CadenceMonthly:
		next = from.AddDate(0, 1, 0)
	case CadenceQuarterly:
		next = from.AddDate(0, 3, 0)
	case CadenceAnnual:
		next = from.Add(365 * 24 * time.Hour)
	default:
		return nil
	}
	return &next
}
