package domain

import (
	"errors"
	"strings"
	"time"
)

// Programme is a named, versioned unit of recurring monitoring work.
// Catalog administration owns creation and editing; the orchestrator only
// reads configuration and stamps the schedule fields at run finalize.
type Programme struct {
	ID               string
	Code             string
	Name             string
	DomainTag        string
	Active           bool
	SchedulerEnabled bool
	Cadence          Cadence
	LastRunAt        *time.Time
	NextRunAt        *time.Time
	// Pipeline holds the raw YAML pipeline definition, empty when the
	// canonical default pipeline applies.
	Pipeline          []byte
	MinDatasetLinks   int
	MinIndicatorLinks int
	MethodProfiles    []string
	Metadata          Metadata
	CreatedAt         time.Time
}

// LinkCounts is the snapshot of catalog links a run captures at creation time.
type LinkCounts struct {
	Datasets   int
	Indicators int
}

func (p Programme) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("programme id is required")
	}
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("programme code is required")
	}
	if NormalizeCadence(string(p.Cadence)) == "" {
		return errors.New("programme cadence is invalid")
	}
	if p.MinDatasetLinks < 0 {
		return errors.New("minimum dataset links must be >= 0")
	}
	if p.MinIndicatorLinks < 0 {
		return errors.New("minimum indicator links must be >= 0")
	}
	return nil
}

// MinimumDatasetLinks returns the configured dataset-link minimum, defaulting to 1.
func (p Programme) MinimumDatasetLinks() int {
	if p.MinDatasetLinks <= 0 {
		return 1
	}
	return p.MinDatasetLinks
}

// MinimumIndicatorLinks returns the configured indicator-link minimum, defaulting to 1.
func (p Programme) MinimumIndicatorLinks() int {
	if p.MinIndicatorLinks <= 0 {
		return 1
	}
	return p.MinIndicatorLinks
}
