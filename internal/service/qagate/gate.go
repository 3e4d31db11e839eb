package qagate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
)

const (
	CodeLinkThresholds = "links.thresholds"

	// CodePrefixSpatialLayer prefixes per-layer structural check codes; the
	// layer name completes the code.
	CodePrefixSpatialLayer = "spatial.layer."

	AlertCodeThresholdBreach = "qa.threshold_breach"
)

// SpatialLayer is the observed shape of one ingested spatial layer.
type SpatialLayer struct {
	Name              string
	FeatureCount      int
	InvalidGeometries int
	HasBoundingBox    bool
}

// Gate evaluates quality checks for a run and records their outcomes. A
// blocking breach raises exactly one open alert on the programme.
type Gate struct {
	results repo.QAResultRepository
	alerts  repo.AlertRepository
	now     func() time.Time
}

func NewGate(results repo.QAResultRepository, alerts repo.AlertRepository) (*Gate, error) {
	if results == nil {
		return nil, errors.New("qa result repository is required")
	}
	if alerts == nil {
		return nil, errors.New("alert repository is required")
	}
	return &Gate{results: results, alerts: alerts, now: time.Now}, nil
}

// EvaluateThresholds checks the programme's catalog-link minimums against the
// observed snapshot. A failing outcome is blocking and enumerates every unmet
// minimum in one result.
func (g *Gate) EvaluateThresholds(ctx context.Context, run domain.Run, stepID string, programme domain.Programme, observed domain.LinkCounts, actor string) (domain.QAResult, error) {
	if g == nil || g.results == nil || g.alerts == nil {
		return domain.QAResult{}, errors.New("qa gate not initialized")
	}
	status, message, details := ClassifyThresholds(programme, observed)
	result := domain.QAResult{
		ID:        uuid.NewString(),
		RunID:     strings.TrimSpace(run.ID),
		StepID:    strings.TrimSpace(stepID),
		Code:      CodeLinkThresholds,
		Status:    status,
		Message:   message,
		Details:   details,
		CreatedAt: g.now().UTC(),
	}
	if err := g.results.CreateQAResult(ctx, result); err != nil {
		return domain.QAResult{}, fmt.Errorf("record threshold result: %w", err)
	}
	if status == domain.QAStatusFail {
		alert := domain.Alert{
			ID:          ulid.Make().String(),
			ProgrammeID: strings.TrimSpace(run.ProgrammeID),
			RunID:       strings.TrimSpace(run.ID),
			Severity:    domain.AlertSeverityWarning,
			State:       domain.AlertStateOpen,
			Code:        AlertCodeThresholdBreach,
			Message:     message,
			Details:     details.Clone(),
			CreatedBy:   strings.TrimSpace(actor),
			CreatedAt:   g.now().UTC(),
		}
		if err := g.alerts.CreateAlert(ctx, alert); err != nil {
			return domain.QAResult{}, fmt.Errorf("raise threshold alert: %w", err)
		}
	}
	return result, nil
}

// EvaluateSpatialLayers classifies every layer and records one result per
// layer regardless of outcome.
func (g *Gate) EvaluateSpatialLayers(ctx context.Context, run domain.Run, stepID string, layers []SpatialLayer) ([]domain.QAResult, error) {
	if g == nil || g.results == nil {
		return nil, errors.New("qa gate not initialized")
	}
	results := make([]domain.QAResult, 0, len(layers))
	for _, layer := range layers {
		status, message := ClassifySpatialLayer(layer)
		result := domain.QAResult{
			ID:     uuid.NewString(),
			RunID:  strings.TrimSpace(run.ID),
			StepID: strings.TrimSpace(stepID),
			Code:    CodePrefixSpatialLayer + strings.TrimSpace(layer.Name),
			Status:  status,
			Message: message,
			Details: domain.Metadata{
				"observed": map[string]any{
					"layer":              strings.TrimSpace(layer.Name),
					"feature_count":      layer.FeatureCount,
					"invalid_geometries": layer.InvalidGeometries,
					"has_bounding_box":   layer.HasBoundingBox,
				},
				"expected": map[string]any{
					"feature_count_min":  1,
					"invalid_geometries": 0,
					"has_bounding_box":   true,
				},
			},
			CreatedAt: g.now().UTC(),
		}
		if err := g.results.CreateQAResult(ctx, result); err != nil {
			return nil, fmt.Errorf("record spatial result: %w", err)
		}
		results = append(results, result)
	}
	return results, nil
}

// ClassifyThresholds is the pure threshold rule: every unmet minimum appears
// in the failure details.
func ClassifyThresholds(programme domain.Programme, observed domain.LinkCounts) (domain.QAStatus, string, domain.Metadata) {
	unmet := make([]string, 0, 2)
	if observed.Datasets < programme.MinimumDatasetLinks() {
		unmet = append(unmet, "dataset_links")
	}
	if observed.Indicators < programme.MinimumIndicatorLinks() {
		unmet = append(unmet, "indicator_links")
	}
	details := domain.Metadata{
		"observed": map[string]any{
			"dataset_links":   observed.Datasets,
			"indicator_links": observed.Indicators,
		},
		"expected": map[string]any{
			"dataset_links_min":   programme.MinimumDatasetLinks(),
			"indicator_links_min": programme.MinimumIndicatorLinks(),
		},
	}
	if len(unmet) > 0 {
		details["unmet"] = unmet
		return domain.QAStatusFail, "catalog link minimums not met: " + strings.Join(unmet, ", "), details
	}
	return domain.QAStatusPass, "", details
}

// ClassifySpatialLayer grades one layer: zero features or any invalid
// geometry fails, a missing bounding box warns.
func ClassifySpatialLayer(layer SpatialLayer) (domain.QAStatus, string) {
	switch {
	case layer.FeatureCount <= 0:
		return domain.QAStatusFail, "layer has no features"
	case layer.InvalidGeometries > 0:
		return domain.QAStatusFail, fmt.Sprintf("layer has %d invalid geometries", layer.InvalidGeometries)
	case !layer.HasBoundingBox:
		return domain.QAStatusWarn, "layer bounding box is missing"
	default:
		return domain.QAStatusPass, ""
	}
}

// StepStatusForResults maps recorded outcomes onto the executing step. A
// failing structural layer check is broken input data and fails the step; a
// failing threshold check is a gate awaiting operator input and blocks it.
// Warnings and passes let the run continue.
func StepStatusForResults(results []domain.QAResult) domain.StepStatus {
	status := domain.StepStatusSucceeded
	for _, result := range results {
		if result.Status != domain.QAStatusFail {
			continue
		}
		if strings.HasPrefix(result.Code, CodePrefixSpatialLayer) {
			return domain.StepStatusFailed
		}
		status = domain.StepStatusBlocked
	}
	return status
}
