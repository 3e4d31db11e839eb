package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/artifacts"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/qagate"
)

// StepContext carries everything a behavior needs to execute one step.
type StepContext struct {
	Run       domain.Run
	Programme domain.Programme
	Step      domain.Step
	Params    map[string]any
	Actor     string
}

// StepOutcome is the terminal result a behavior reports for its step.
type StepOutcome struct {
	Status     domain.StepStatus
	Details    domain.Metadata
	LogExcerpt string
}

// Behavior executes one step kind for one programme family. Implementations
// report outcomes through StepOutcome; a returned error marks the step failed.
type Behavior interface {
	Execute(ctx context.Context, sc StepContext) (StepOutcome, error)
}

// SourceSyncResult is the per-source outcome of a spatial synchronisation.
type SourceSyncResult struct {
	Source   string
	Features int
	Status   domain.StepStatus
	Message  string
}

// SyncService pulls spatial source data into the working store.
type SyncService interface {
	SyncSources(ctx context.Context, programme domain.Programme) ([]SourceSyncResult, error)
	LayerInventory(ctx context.Context, programme domain.Programme) ([]qagate.SpatialLayer, error)
}

// ProfileResult is the outcome of one method profile computation.
type ProfileResult struct {
	Profile string
	Status  domain.StepStatus
	Metrics domain.Metadata
}

// MethodProfileRunner executes one configured method profile.
type MethodProfileRunner interface {
	RunProfile(ctx context.Context, programme domain.Programme, run domain.Run, profile string) (ProfileResult, error)
}

// PublishResult summarises what a publish handed to downstream consumers.
type PublishResult struct {
	Destination string
	Items       int
}

// Publisher pushes computed outputs to the public catalog.
type Publisher interface {
	Publish(ctx context.Context, programme domain.Programme, run domain.Run) (PublishResult, error)
}

type registryKey struct {
	domainTag string
	stepType  domain.StepType
}

// Registry resolves the behavior for a (programme domain tag, step type)
// pair, falling back to the untagged default for the step type.
type Registry struct {
	behaviors map[registryKey]Behavior
}

func NewRegistry() *Registry {
	return &Registry{behaviors: map[registryKey]Behavior{}}
}

func (r *Registry) Register(domainTag string, stepType domain.StepType, behavior Behavior) {
	if r == nil || behavior == nil {
		return
	}
	key := registryKey{domainTag: strings.ToLower(strings.TrimSpace(domainTag)), stepType: stepType}
	r.behaviors[key] = behavior
}

func (r *Registry) Lookup(domainTag string, stepType domain.StepType) Behavior {
	if r == nil {
		return nil
	}
	tag := strings.ToLower(strings.TrimSpace(domainTag))
	if behavior, ok := r.behaviors[registryKey{domainTag: tag, stepType: stepType}]; ok {
		return behavior
	}
	return r.behaviors[registryKey{stepType: stepType}]
}

// BehaviorDeps bundles the collaborators the builtin behaviors draw on.
// Sync, Profiles and Publisher may be nil when the deployment does not
// provide them; the affected behaviors then report a blocked step.
type BehaviorDeps struct {
	Artifacts artifacts.Writer
	Gate      *qagate.Gate
	Sync      SyncService
	Profiles  MethodProfileRunner
	Publisher Publisher
}

// DefaultRegistry wires the builtin behaviors: generic ingest/validate/
// compute/publish plus the spatial programme family overrides.
func DefaultRegistry(deps BehaviorDeps) *Registry {
	registry := NewRegistry()
	registry.Register("", domain.StepTypeIngest, &ingestSnapshotBehavior{artifacts: deps.Artifacts})
	registry.Register("", domain.StepTypeValidate, &validateBehavior{gate: deps.Gate})
	registry.Register("", domain.StepTypeCompute, &methodProfileBehavior{artifacts: deps.Artifacts, profiles: deps.Profiles})
	registry.Register("", domain.StepTypePublish, &publishBehavior{publisher: deps.Publisher})
	registry.Register(DomainTagSpatial, domain.StepTypeIngest, &spatialSyncBehavior{artifacts: deps.Artifacts, gate: deps.Gate, sync: deps.Sync})
	registry.Register(DomainTagSpatial, domain.StepTypeValidate, &validateBehavior{gate: deps.Gate, sync: deps.Sync})
	return registry
}

// DomainTagSpatial marks programmes whose ingest walks spatial sources.
const DomainTagSpatial = "spatial"

// ingestSnapshotBehavior records the catalog-link snapshot captured at queue
// time as a step artefact.
type ingestSnapshotBehavior struct {
	artifacts artifacts.Writer
}

func (b *ingestSnapshotBehavior) Execute(ctx context.Context, sc StepContext) (StepOutcome, error) {
	counts := linkCountsFromSummary(sc.Run.InputSummary)
	details := domain.Metadata{
		"dataset_links":   counts.Datasets,
		"indicator_links": counts.Indicators,
	}
	if b.artifacts != nil {
		blob, err := json.Marshal(map[string]any{
			"programme_code":  sc.Programme.Code,
			"dataset_links":   counts.Datasets,
			"indicator_links": counts.Indicators,
		})
		if err != nil {
			return StepOutcome{}, fmt.Errorf("encode link snapshot: %w", err)
		}
		artefact, err := b.artifacts.WriteArtifact(ctx, artifacts.WriteInput{
			RunID:     sc.Run.ID,
			StepID:    sc.Step.ID,
			StepKey:   sc.Step.Key,
			Label:     "link-counts.json",
			Body:      blob,
			MediaType: "application/json",
			Metadata:  details.Clone(),
			Actor:     sc.Actor,
		})
		if err != nil {
			return StepOutcome{}, fmt.Errorf("write link snapshot: %w", err)
		}
		details["artefact_id"] = artefact.ID
	}
	return StepOutcome{Status: domain.StepStatusSucceeded, Details: details}, nil
}

// spatialSyncBehavior synchronises every configured spatial source, records
// per-source quality outcomes and a sync summary artefact. Any failed source
// fails the step; otherwise any blocked source blocks it.
type spatialSyncBehavior struct {
	artifacts artifacts.Writer
	gate      *qagate.Gate
	sync      SyncService
}

func (b *spatialSyncBehavior) Execute(ctx context.Context, sc StepContext) (StepOutcome, error) {
	if b.sync == nil {
		return StepOutcome{
			Status:     domain.StepStatusBlocked,
			Details:    domain.Metadata{"reason": "sync service unavailable"},
			LogExcerpt: "spatial sync service is not configured",
		}, nil
	}
	results, err := b.sync.SyncSources(ctx, sc.Programme)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("sync spatial sources: %w", err)
	}

	status := domain.StepStatusSucceeded
	var failed, blocked, features int
	sources := make([]map[string]any, 0, len(results))
	for _, result := range results {
		features += result.Features
		switch result.Status {
		case domain.StepStatusFailed:
			failed++
		case domain.StepStatusBlocked:
			blocked++
		}
		status = domain.MostSevereStepStatus(status, result.Status)
		sources = append(sources, map[string]any{
			"source":   result.Source,
			"features": result.Features,
			"status":   string(result.Status),
			"message":  result.Message,
		})
	}

	details := domain.Metadata{
		"sources_total":   len(results),
		"sources_failed":  failed,
		"sources_blocked": blocked,
		"features_synced": features,
	}
	if b.artifacts != nil {
		blob, err := json.Marshal(map[string]any{
			"programme_code": sc.Programme.Code,
			"sources":        sources,
			"summary":        details,
		})
		if err != nil {
			return StepOutcome{}, fmt.Errorf("encode sync summary: %w", err)
		}
		artefact, err := b.artifacts.WriteArtifact(ctx, artifacts.WriteInput{
			RunID:     sc.Run.ID,
			StepID:    sc.Step.ID,
			StepKey:   sc.Step.Key,
			Label:     "sync-summary.json",
			Body:      blob,
			MediaType: "application/json",
			Actor:     sc.Actor,
		})
		if err != nil {
			return StepOutcome{}, fmt.Errorf("write sync summary: %w", err)
		}
		details["artefact_id"] = artefact.ID
	}
	return StepOutcome{Status: status, Details: details}, nil
}

// validateBehavior runs the catalog-link threshold gate; for spatial
// programmes it also classifies every ingested layer.
type validateBehavior struct {
	gate *qagate.Gate
	sync SyncService
}

func (b *validateBehavior) Execute(ctx context.Context, sc StepContext) (StepOutcome, error) {
	if b.gate == nil {
		return StepOutcome{}, errors.New("qa gate is required for validate steps")
	}
	counts := linkCountsFromSummary(sc.Run.InputSummary)
	threshold, err := b.gate.EvaluateThresholds(ctx, sc.Run, sc.Step.ID, sc.Programme, counts, sc.Actor)
	if err != nil {
		return StepOutcome{}, err
	}
	results := []domain.QAResult{threshold}

	if b.sync != nil {
		layers, err := b.sync.LayerInventory(ctx, sc.Programme)
		if err != nil {
			return StepOutcome{}, fmt.Errorf("layer inventory: %w", err)
		}
		spatial, err := b.gate.EvaluateSpatialLayers(ctx, sc.Run, sc.Step.ID, layers)
		if err != nil {
			return StepOutcome{}, err
		}
		results = append(results, spatial...)
	}

	var failCount, warnCount int
	for _, result := range results {
		switch result.Status {
		case domain.QAStatusFail:
			failCount++
		case domain.QAStatusWarn:
			warnCount++
		}
	}
	outcome := StepOutcome{
		Status: qagate.StepStatusForResults(results),
		Details: domain.Metadata{
			"checks_total": len(results),
			"checks_fail":  failCount,
			"checks_warn":  warnCount,
		},
	}
	switch outcome.Status {
	case domain.StepStatusBlocked:
		outcome.LogExcerpt = threshold.Message
	case domain.StepStatusFailed:
		for _, result := range results {
			if result.Status == domain.QAStatusFail && strings.HasPrefix(result.Code, qagate.CodePrefixSpatialLayer) {
				outcome.LogExcerpt = result.Message
				break
			}
		}
	}
	return outcome, nil
}

// methodProfileBehavior runs every configured method profile and aggregates
// their statuses by severity.
type methodProfileBehavior struct {
	artifacts artifacts.Writer
	profiles  MethodProfileRunner
}

func (b *methodProfileBehavior) Execute(ctx context.Context, sc StepContext) (StepOutcome, error) {
	profiles := sc.Programme.MethodProfiles
	if len(profiles) == 0 {
		return StepOutcome{
			Status:  domain.StepStatusSucceeded,
			Details: domain.Metadata{"profiles_total": 0},
		}, nil
	}
	if b.profiles == nil {
		return StepOutcome{
			Status:     domain.StepStatusBlocked,
			Details:    domain.Metadata{"reason": "method profile runner unavailable"},
			LogExcerpt: "method profile runner is not configured",
		}, nil
	}

	status := domain.StepStatusSucceeded
	metrics := make([]map[string]any, 0, len(profiles))
	for _, profile := range profiles {
		result, err := b.profiles.RunProfile(ctx, sc.Programme, sc.Run, profile)
		if err != nil {
			return StepOutcome{}, fmt.Errorf("run method profile %q: %w", profile, err)
		}
		status = domain.MostSevereStepStatus(status, result.Status)
		metrics = append(metrics, map[string]any{
			"profile": result.Profile,
			"status":  string(result.Status),
			"metrics": result.Metrics,
		})
	}

	details := domain.Metadata{"profiles_total": len(profiles)}
	if b.artifacts != nil {
		blob, err := json.Marshal(map[string]any{
			"programme_code": sc.Programme.Code,
			"profiles":       metrics,
		})
		if err != nil {
			return StepOutcome{}, fmt.Errorf("encode method metrics: %w", err)
		}
		artefact, err := b.artifacts.WriteArtifact(ctx, artifacts.WriteInput{
			RunID:     sc.Run.ID,
			StepID:    sc.Step.ID,
			StepKey:   sc.Step.Key,
			Label:     "method-metrics.json",
			Body:      blob,
			MediaType: "application/json",
			Actor:     sc.Actor,
		})
		if err != nil {
			return StepOutcome{}, fmt.Errorf("write method metrics: %w", err)
		}
		details["artefact_id"] = artefact.ID
	}
	return StepOutcome{Status: status, Details: details}, nil
}

// publishBehavior hands computed outputs to the publisher. The executor skips
// this behavior entirely on dry runs.
type publishBehavior struct {
	publisher Publisher
}

func (b *publishBehavior) Execute(ctx context.Context, sc StepContext) (StepOutcome, error) {
	if b.publisher == nil {
		return StepOutcome{
			Status:     domain.StepStatusBlocked,
			Details:    domain.Metadata{"reason": "publisher unavailable"},
			LogExcerpt: "publisher is not configured",
		}, nil
	}
	result, err := b.publisher.Publish(ctx, sc.Programme, sc.Run)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("publish outputs: %w", err)
	}
	return StepOutcome{
		Status: domain.StepStatusSucceeded,
		Details: domain.Metadata{
			"destination": result.Destination,
			"items":       result.Items,
		},
	}, nil
}

func linkCountsFromSummary(summary domain.Metadata) domain.LinkCounts {
	return domain.LinkCounts{
		Datasets:   intFromMetadata(summary, "dataset_links"),
		Indicators: intFromMetadata(summary, "indicator_links"),
	}
}

// intFromMetadata tolerates the float64 shape JSON round-trips produce.
func intFromMetadata(meta domain.Metadata, key string) int {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
