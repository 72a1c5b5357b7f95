package benchmark

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
)

func TestScenarioBuilder(t *testing.T) {
	hd, ok := images.ResolutionByType(images.ResolutionTypeHD720p)
	require.True(t, ok)

	scenario := NewScenarioBuilder("test").
		WithModel(model.ModelNameYOLOv8, "yolov8n.onnx").
		WithEngineType(inference.EngineOpenCV).
		WithResolution(hd).
		WithIterations(5).
		WithWarmupRuns(1).
		Build()

	assert.Equal(t, "test", scenario.Name)
	assert.Equal(t, model.ModelNameYOLOv8, scenario.Model)
	assert.Equal(t, "yolov8n.onnx", scenario.ModelPath)
	assert.Equal(t, inference.EngineOpenCV, scenario.Engine)
	assert.Equal(t, hd, scenario.Resolution)
	assert.Equal(t, 5, scenario.Iterations)
	assert.Equal(t, 1, scenario.WarmupRuns)
	assert.NoError(t, scenario.Validate())
}

func TestScenario_Validate(t *testing.T) {
	valid := NewScenarioBuilder("ok").WithModel(model.ModelNameYOLOv5, "m.onnx").Build()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{name: "no name", mutate: func(s *Scenario) { s.Name = "" }},
		{name: "no model", mutate: func(s *Scenario) { s.Model = "" }},
		{name: "no iterations", mutate: func(s *Scenario) { s.Iterations = 0 }},
		{name: "negative warmup", mutate: func(s *Scenario) { s.WarmupRuns = -1 }},
		{name: "zero resolution", mutate: func(s *Scenario) { s.Resolution = images.Resolution{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestPredefinedScenarios(t *testing.T) {
	paths := map[model.Name]string{
		model.ModelNameYOLOv8:    "yolov8n.onnx",
		model.ModelNameUltraFace: "rfb-320.onnx",
	}

	quick := QuickScenarios(paths, inference.EngineONNX)
	require.Len(t, quick.Scenarios, 4)
	assert.Equal(t, "quick_ultraface_640x480", quick.Scenarios[0].Name)
	assert.Equal(t, "quick_yolov8_1920x1080", quick.Scenarios[3].Name)
	for _, s := range quick.Scenarios {
		assert.NoError(t, s.Validate())
		assert.Equal(t, paths[s.Model], s.ModelPath)
	}

	res := ResolutionScenarios(model.ModelNameYOLOv5, "yolov5s.onnx", inference.EngineONNX)
	assert.Len(t, res.Scenarios, len(images.Resolutions()))

	vga, _ := images.ResolutionByType(images.ResolutionTypeVGA)
	engines := EngineScenarios(model.ModelNameYOLOv5, "yolov5s.onnx", vga, inference.EngineONNX, inference.EngineOpenCV)
	require.Len(t, engines.Scenarios, 2)
	assert.Equal(t, inference.EngineOpenCV, engines.Scenarios[1].Engine)
}

func TestScenarioSetFiles(t *testing.T) {
	set := QuickScenarios(map[model.Name]string{model.ModelNameYOLOv5: "yolov5s.onnx"}, inference.EngineTFLite)

	for _, name := range []string{"scenarios.json", "scenarios.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveScenarioSet(set, path))

			loaded, err := LoadScenarioSet(path)
			require.NoError(t, err)
			assert.Equal(t, set, loaded)
		})
	}

	t.Run("invalid scenario", func(t *testing.T) {
		bad := &ScenarioSet{Name: "bad", Scenarios: []Scenario{{Name: "x"}}}
		path := filepath.Join(t.TempDir(), "bad.yml")
		require.NoError(t, SaveScenarioSet(bad, path))

		_, err := LoadScenarioSet(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadScenarioSet(filepath.Join(t.TempDir(), "none.json"))
		assert.Error(t, err)
	})
}
