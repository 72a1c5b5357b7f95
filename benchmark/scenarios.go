package benchmark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
)

// Scenario defines a specific test configuration
type Scenario struct {
	Name       string               `json:"name" yaml:"name"`
	Model      model.Name           `json:"model" yaml:"model"`
	ModelPath  string               `json:"model_path" yaml:"model_path"`
	Engine     inference.EngineType `json:"engine" yaml:"engine"`
	Resolution images.Resolution    `json:"resolution" yaml:"resolution"`
	Iterations int                  `json:"iterations" yaml:"iterations"`
	WarmupRuns int                  `json:"warmup_runs" yaml:"warmup_runs"`
}

// Validate checks that the scenario can be run.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario has no name")
	}
	if s.Model == "" {
		return errors.Errorf("scenario %s has no model", s.Name)
	}
	if s.Iterations <= 0 {
		return errors.Errorf("scenario %s needs at least one iteration", s.Name)
	}
	if s.WarmupRuns < 0 {
		return errors.Errorf("scenario %s has negative warmup runs", s.Name)
	}

	return errors.Wrapf(s.Resolution.Pixels.Validate(), "scenario %s", s.Name)
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder
func NewScenarioBuilder(name string) *ScenarioBuilder {
	vga, _ := images.ResolutionByType(images.ResolutionTypeVGA)

	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Engine:     inference.EngineONNX,
			Resolution: vga,
			Iterations: 100,
			WarmupRuns: 10,
		},
	}
}

// WithEngineType sets the engine type
func (sb *ScenarioBuilder) WithEngineType(engineType inference.EngineType) *ScenarioBuilder {
	sb.scenario.Engine = engineType
	return sb
}

// WithModel sets the model preset and file
func (sb *ScenarioBuilder) WithModel(name model.Name, modelPath string) *ScenarioBuilder {
	sb.scenario.Model = name
	sb.scenario.ModelPath = modelPath
	return sb
}

// WithResolution sets the source frame size
func (sb *ScenarioBuilder) WithResolution(res images.Resolution) *ScenarioBuilder {
	sb.scenario.Resolution = res
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios" yaml:"scenarios"`
}

// sortedModels returns the map keys in a stable order.
func sortedModels(modelPaths map[model.Name]string) []model.Name {
	names := make([]model.Name, 0, len(modelPaths))
	for name := range modelPaths {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

// QuickScenarios runs every model on VGA and 1080p frames.
//
// Arguments:
//   - modelPaths: Model file per preset name.
//   - engine: The engine all scenarios use.
//
// Returns:
//   - *ScenarioSet: The scenarios, ordered by model then resolution.
func QuickScenarios(modelPaths map[model.Name]string, engine inference.EngineType) *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, name := range sortedModels(modelPaths) {
		for _, t := range []images.ResolutionType{images.ResolutionTypeVGA, images.ResolutionTypeFHD1080p} {
			res, _ := images.ResolutionByType(t)
			scenario := NewScenarioBuilder(fmt.Sprintf("quick_%s_%dx%d", name, res.Pixels.Width, res.Pixels.Height)).
				WithModel(name, modelPaths[name]).
				WithEngineType(engine).
				WithResolution(res).
				WithIterations(50).
				WithWarmupRuns(5).
				Build()

			scenarios = append(scenarios, scenario)
		}
	}

	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "Every model on VGA and Full HD frames",
		Scenarios:   scenarios,
	}
}

// ResolutionScenarios runs one model over every known source resolution. Larger frames
// only cost preprocessing time, so this isolates the letterbox stage.
func ResolutionScenarios(name model.Name, modelPath string, engine inference.EngineType) *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, res := range images.Resolutions() {
		scenario := NewScenarioBuilder(fmt.Sprintf("resolution_%s_%dx%d", name, res.Pixels.Width, res.Pixels.Height)).
			WithModel(name, modelPath).
			WithEngineType(engine).
			WithResolution(res).
			Build()

		scenarios = append(scenarios, scenario)
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Resolution Comparison - %s", name),
		Description: fmt.Sprintf("Compares source frame sizes for the %s model", name),
		Scenarios:   scenarios,
	}
}

// EngineScenarios runs one model on each engine at the same resolution.
func EngineScenarios(name model.Name, modelPath string, res images.Resolution, engineTypes ...inference.EngineType) *ScenarioSet {
	scenarios := make([]Scenario, 0, len(engineTypes))

	for _, engine := range engineTypes {
		scenario := NewScenarioBuilder(fmt.Sprintf("engine_%s_%s", name, engine)).
			WithModel(name, modelPath).
			WithEngineType(engine).
			WithResolution(res).
			Build()

		scenarios = append(scenarios, scenario)
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Engine Comparison - %s @ %s", name, res.Name),
		Description: fmt.Sprintf("Compares inference engines for the %s model", name),
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet writes a scenario set as YAML for .yaml/.yml files and JSON otherwise.
func SaveScenarioSet(scenarioSet *ScenarioSet, filename string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(scenarioSet)
	} else {
		data, err = json.MarshalIndent(scenarioSet, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal scenario set")
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write scenario file")
	}

	return nil
}

// LoadScenarioSet loads a scenario set written by SaveScenarioSet and validates every
// scenario in it.
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	var scenarioSet ScenarioSet
	if isYAML(filename) {
		err = yaml.Unmarshal(data, &scenarioSet)
	} else {
		err = json.Unmarshal(data, &scenarioSet)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal scenario set")
	}

	for _, s := range scenarioSet.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return &scenarioSet, nil
}

func isYAML(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".yaml" || ext == ".yml"
}
