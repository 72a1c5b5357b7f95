package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Runner is the part of a detector a benchmark drives. *detector.Detector implements it.
type Runner interface {
	DetectTimed(ctx context.Context, img image.Image) (postprocess.DetectionSet, detector.Timings, error)
	Close() error
}

// Opener creates the runner for a scenario.
type Opener func(s Scenario) (Runner, error)

// Suite manages and executes benchmark scenarios
type Suite struct {
	open      Opener
	outputDir string
	logger    *zap.Logger

	mu        sync.RWMutex
	scenarios []Scenario
	corpus    []image.Image
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - open: Creates a runner per scenario; the suite closes it when the scenario ends.
//   - outputDir: Where SaveResults writes its files.
//   - logger: Progress logger; nil disables logging.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(open Opener, outputDir string, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Suite{
		open:      open,
		outputDir: outputDir,
		logger:    logger.Named("benchmark"),
		scenarios: make([]Scenario, 0),
		results:   make([]PerformanceMetrics, 0),
	}
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenarios ...Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenarios...)
}

// Scenarios returns the configured scenarios.
func (bs *Suite) Scenarios() []Scenario {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	out := make([]Scenario, len(bs.scenarios))
	copy(out, bs.scenarios)
	return out
}

// LoadImages loads the test corpus from an image file or a directory of images. Files in a
// directory that are not images, or fail to decode, are skipped.
func (bs *Suite) LoadImages(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "failed to stat image path")
	}

	var corpus []image.Image
	if !info.IsDir() {
		img, err := images.Load(path)
		if err != nil {
			return err
		}
		corpus = append(corpus, img)
	} else {
		entries, err := os.ReadDir(path)
		if err != nil {
			return errors.Wrap(err, "failed to read directory")
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, ok := images.FormatFromPath(entry.Name()); !ok {
				continue
			}
			img, err := images.Load(filepath.Join(path, entry.Name()))
			if err != nil {
				bs.logger.Warn("skipping image", zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			corpus = append(corpus, img)
		}
		if len(corpus) == 0 {
			return errors.Errorf("no valid images found in directory: %s", path)
		}
	}

	bs.mu.Lock()
	bs.corpus = corpus
	bs.mu.Unlock()

	return nil
}

// frames returns the corpus resized to the scenario resolution. Without a corpus a single
// mid-grey frame is used.
func (bs *Suite) frames(res images.Resolution) []image.Image {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	w, h := res.Pixels.Width, res.Pixels.Height
	if len(bs.corpus) == 0 {
		return []image.Image{imaging.New(w, h, color.NRGBA{R: 128, G: 128, B: 128, A: 255})}
	}

	frames := make([]image.Image, len(bs.corpus))
	for i, img := range bs.corpus {
		frames[i] = imaging.Resize(img, w, h, imaging.Linear)
	}

	return frames
}

// RunScenario executes a single benchmark scenario
//
// Arguments:
//   - ctx: Cancels the run between iterations.
//   - scenario: The scenario.
//
// Returns:
//   - *PerformanceMetrics: The measurements. Failed iterations count towards ErrorRate.
//   - error: Invalid scenario, runner creation failure or cancellation.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	runner, err := bs.open(scenario)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			bs.logger.Warn("failed to close runner", zap.String("scenario", scenario.Name), zap.Error(err))
		}
	}()

	frames := bs.frames(scenario.Resolution)
	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, _, _ = runner.DetectTimed(ctx, frames[i%len(frames)])
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	var pre, inf, post TimeTracker
	failures := 0
	startTime := time.Now()

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		set, timings, err := runner.DetectTimed(ctx, frames[i%len(frames)])
		if err != nil {
			failures++
			bs.logger.Debug("iteration failed", zap.String("scenario", scenario.Name), zap.Int("iteration", i), zap.Error(err))
			continue
		}

		pre.Record(timings.Preprocess)
		inf.Record(timings.Inference)
		post.Record(timings.Postprocess)
		metrics.DetectionCount += len(set)
	}

	metrics.TotalDuration = time.Since(startTime)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	if seconds := metrics.TotalDuration.Seconds(); seconds > 0 {
		metrics.FramesPerSecond = float64(scenario.Iterations-failures) / seconds
	}
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)
	metrics.Preprocess = pre.Stats()
	metrics.Inference = inf.Stats()
	metrics.Postprocess = post.Stats()

	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}
	metrics.CPUStats = CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	return metrics, nil
}

// RunAllScenarios executes all configured scenarios in order. A failing scenario is
// logged and skipped; cancellation stops the run.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	for _, scenario := range bs.Scenarios() {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			bs.logger.Error("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("fps", metrics.FramesPerSecond),
			zap.Duration("inference_p50", metrics.Inference.P50),
			zap.Float64("error_rate", metrics.ErrorRate),
		)
	}

	return nil
}

// SaveResults writes the results as JSON and a CSV summary into the output directory.
//
// Returns:
//   - string: The JSON results file.
//   - error: The error if any.
func (bs *Suite) SaveResults() (string, error) {
	results := bs.Results()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write results file")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", errors.Wrap(err, "failed to save summary CSV")
	}

	bs.logger.Info("results saved", zap.String("results", resultsFile), zap.String("summary", summaryFile))

	return resultsFile, nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{
		"Scenario", "Model", "Engine", "Resolution", "FPS",
		"Preprocess_P50_ms", "Inference_P50_ms", "Postprocess_P50_ms",
		"Alloc_MB", "Detections", "Error_Rate",
	}); err != nil {
		return err
	}

	for _, r := range results {
		if err := w.Write([]string{
			r.Scenario.Name,
			string(r.Scenario.Model),
			string(r.Scenario.Engine),
			fmt.Sprintf("%dx%d", r.Scenario.Resolution.Pixels.Width, r.Scenario.Resolution.Pixels.Height),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			millis(r.Preprocess.P50),
			millis(r.Inference.P50),
			millis(r.Postprocess.P50),
			strconv.FormatFloat(float64(r.MemoryStats.AllocBytes)/(1024*1024), 'f', 2, 64),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Nanoseconds())/1e6, 'f', 3, 64)
}

// Results returns all benchmark results
func (bs *Suite) Results() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}
