// Command benchmark measures detector latency per stage across models, engines and frame
// sizes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/benchmark"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/engines"
	"github.com/nvr-ai/go-detect/models/model"
)

func main() {
	var (
		scenarioFile = flag.String("scenarios", "", "Path to a JSON or YAML scenario set")
		outputDir    = flag.String("output", "./benchmark_results", "Output directory for results")
		testImages   = flag.String("images", "", "Path to test images directory or file; synthetic frames when empty")
		modelPath    = flag.String("model", "", "Path to the model file")
		preset       = flag.String("preset", string(model.ModelNameYOLOv5), "Model preset")
		engineType   = flag.String("engine", string(inference.EngineONNX), "Engine type to use for inference")
		threads      = flag.Int("threads", 0, "Runtime threads, 0 lets the runtime decide")
		resolutions  = flag.Bool("resolutions", false, "Compare source frame sizes")
		compare      = flag.Bool("engines", false, "Compare onnx, opencv and tflite")
		save         = flag.String("save-scenarios", "", "Write the generated scenario set to this file and exit")
		timeout      = flag.Duration("timeout", 30*time.Minute, "Benchmark timeout duration")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	var set *benchmark.ScenarioSet
	name := model.Name(*preset)
	engine := inference.EngineType(*engineType)

	switch {
	case *scenarioFile != "":
		set, err = benchmark.LoadScenarioSet(*scenarioFile)
		if err != nil {
			logger.Fatal("failed to load scenario file", zap.Error(err))
		}
	case *modelPath == "":
		flag.Usage()
		os.Exit(2)
	case *resolutions:
		set = benchmark.ResolutionScenarios(name, *modelPath, engine)
	case *compare:
		vga, _ := images.ResolutionByType(images.ResolutionTypeVGA)
		set = benchmark.EngineScenarios(name, *modelPath, vga, inference.EngineONNX, inference.EngineOpenCV, inference.EngineTFLite)
	default:
		set = benchmark.QuickScenarios(map[model.Name]string{name: *modelPath}, engine)
	}

	if *save != "" {
		if err := benchmark.SaveScenarioSet(set, *save); err != nil {
			logger.Fatal("failed to save scenarios", zap.Error(err))
		}
		logger.Info("scenarios saved", zap.String("file", *save), zap.Int("scenarios", len(set.Scenarios)))
		return
	}

	open := func(s benchmark.Scenario) (benchmark.Runner, error) {
		opts := engines.DefaultOptions()
		opts.Type = s.Engine
		opts.Threads = *threads

		d, err := detector.NewBuilder().
			WithModel(model.NewModelArgs{Name: s.Model, Path: s.ModelPath}).
			WithEngineFactory(engines.Factory(opts, logger)).
			WithChannelOrder(engines.ChannelOrder(s.Engine)).
			WithLogger(logger).
			Build()
		if err != nil {
			return nil, err
		}

		return d, nil
	}

	suite := benchmark.NewSuite(open, *outputDir, logger)
	suite.AddScenario(set.Scenarios...)
	if *testImages != "" {
		if err := suite.LoadImages(*testImages); err != nil {
			logger.Fatal("failed to load test images", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger.Info("starting benchmark", zap.String("set", set.Name), zap.Int("scenarios", len(set.Scenarios)))
	start := time.Now()

	if err := suite.RunAllScenarios(ctx); err != nil {
		logger.Error("benchmark execution failed", zap.Error(err))
	}
	if _, err := suite.SaveResults(); err != nil {
		logger.Fatal("failed to save results", zap.Error(err))
	}

	results := suite.Results()
	fmt.Printf("\n=== BENCHMARK RESULTS (%v) ===\n", time.Since(start).Round(time.Millisecond))

	var bestFPS float64
	var bestScenario string
	for _, r := range results {
		if r.FramesPerSecond > bestFPS {
			bestFPS = r.FramesPerSecond
			bestScenario = r.Scenario.Name
		}
		fmt.Printf("  %-40s %8.2f FPS  pre %-10v inf %-10v post %-10v\n",
			r.Scenario.Name, r.FramesPerSecond, r.Preprocess.P50, r.Inference.P50, r.Postprocess.P50)
	}

	if bestScenario != "" {
		fmt.Printf("\nBest performing scenario: %s (%.2f FPS)\n", bestScenario, bestFPS)
	}
}

func init() {
	flag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", name)
		fmt.Fprintf(os.Stderr, "Benchmark tool for detector performance testing.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -model ./yolov5s.onnx -images ./test_images\n", name)
		fmt.Fprintf(os.Stderr, "  %s -preset yolov8 -model ./yolov8n.onnx -resolutions\n", name)
		fmt.Fprintf(os.Stderr, "  %s -scenarios ./scenarios.yaml\n", name)
	}
}
