package pipelinespec

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
)

const SpecSchemaV1 = "biomonitor.pipeline.v1"

// Spec is a programme's ordered pipeline definition.
type Spec struct {
	Schema string     `json:"schema" yaml:"schema"`
	Steps  []StepSpec `json:"steps" yaml:"steps"`
}

// StepSpec describes one pipeline step.
type StepSpec struct {
	Key    string         `json:"key" yaml:"key"`
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Parse decodes and validates a YAML pipeline definition.
func Parse(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode pipeline spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", SpecSchemaV1)
	}
	if len(s.Steps) == 0 {
		return errors.New("spec.steps must be non-empty")
	}
	seen := make(map[string]struct{}, len(s.Steps))
	for i, step := range s.Steps {
		key := strings.TrimSpace(step.Key)
		if key == "" {
			return fmt.Errorf("spec.steps[%d].key is required", i)
		}
		if _, ok := seen[strings.ToLower(key)]; ok {
			return fmt.Errorf("spec.steps[%d].key %q is duplicated", i, key)
		}
		seen[strings.ToLower(key)] = struct{}{}
		if domain.NormalizeStepType(step.Type) == "" {
			return fmt.Errorf("spec.steps[%d].type %q is not supported", i, step.Type)
		}
	}
	return nil
}

// NormalizedSteps returns the step specs with trimmed keys and canonical types.
func (s Spec) NormalizedSteps() []StepSpec {
	out := make([]StepSpec, 0, len(s.Steps))
	for _, step := range s.Steps {
		out = append(out, StepSpec{
			Key:    strings.TrimSpace(step.Key),
			Type:   string(domain.NormalizeStepType(step.Type)),
			Params: step.Params,
		})
	}
	return out
}

// Default returns the canonical four-step pipeline.
func Default() []StepSpec {
	return []StepSpec{
		{Key: "ingest", Type: string(domain.StepTypeIngest)},
		{Key: "validate", Type: string(domain.StepTypeValidate)},
		{Key: "compute", Type: string(domain.StepTypeCompute)},
		{Key: "publish", Type: string(domain.StepTypePublish)},
	}
}

// Resolve determines the effective step list for a run: the programme's own
// definition when present and valid, narrowed to the matching steps for a
// partial run type, else the canonical default. A non-nil rejected error
// reports that a configured definition was invalid and a fallback applied
// instead.
func Resolve(pipeline []byte, runType domain.RunType) (steps []StepSpec, rejected error) {
	partial := runType != domain.RunTypeFull && runType != ""
	if len(pipeline) > 0 {
		spec, err := Parse(pipeline)
		if err == nil {
			steps = spec.NormalizedSteps()
			if partial {
				steps = filterByType(steps, runType)
			}
			return steps, nil
		}
		rejected = err
	}
	if partial {
		return singleStep(runType), rejected
	}
	return Default(), rejected
}

func filterByType(steps []StepSpec, runType domain.RunType) []StepSpec {
	stepType := domain.NormalizeStepType(string(runType))
	out := make([]StepSpec, 0, 1)
	for _, step := range steps {
		if step.Type == string(stepType) {
			out = append(out, step)
		}
	}
	if len(out) == 0 {
		return singleStep(runType)
	}
	return out
}

func singleStep(runType domain.RunType) []StepSpec {
	stepType := domain.NormalizeStepType(string(runType))
	if stepType == "" {
		return Default()
	}
	return []StepSpec{{Key: string(stepType), Type: string(stepType)}}
}
