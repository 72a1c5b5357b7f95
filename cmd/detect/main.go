// Command detect runs a detection model on one or more images and prints the verdict.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/engines"
	"github.com/nvr-ai/go-detect/inference/onnx"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// options holds the parsed command line.
type options struct {
	modelPath   string
	preset      string
	configPath  string
	engineType  string
	provider    string
	threads     int
	expr        string
	logLevel    string
	development bool
	concurrency int
	timeout     time.Duration
	annotateDir string
	paths       []string
	// factory opens the engine; nil uses the runtime selected by engineType.
	factory detector.EngineFactory
}

func main() {
	var (
		o         options
		imagePath string
	)
	flag.StringVar(&o.modelPath, "model", "", "Path to the model file")
	flag.StringVar(&o.preset, "preset", string(model.ModelNameYOLOv5), "Model preset: "+presetNames())
	flag.StringVar(&o.configPath, "config", "", "YAML file overriding the preset configuration")
	flag.StringVar(&imagePath, "image", "", "Path to the input image; further images may follow as arguments")
	flag.StringVar(&o.engineType, "engine", string(inference.EngineONNX), "Inference engine: onnx, opencv or tflite")
	flag.StringVar(&o.provider, "provider", string(onnx.CPUProviderBackend), "ONNX Runtime execution provider")
	flag.IntVar(&o.threads, "threads", 0, "Runtime threads, 0 lets the runtime decide")
	flag.StringVar(&o.expr, "verdict", "", "Verdict expression overriding the preset, e.g. \"class:0 && top-score>0.5\"")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.BoolVar(&o.development, "dev", false, "Human-readable development logging")
	flag.IntVar(&o.concurrency, "concurrency", 4, "Images pre- and post-processed in parallel")
	flag.DurationVar(&o.timeout, "timeout", time.Minute, "Overall timeout")
	flag.StringVar(&o.annotateDir, "annotate", "", "Directory to write images with the detections drawn")
	flag.Parse()

	o.paths = flag.Args()
	if imagePath != "" {
		o.paths = append([]string{imagePath}, o.paths...)
	}

	os.Exit(execute(o))
}

// execute runs the command and returns the process exit code: 0 on success, 2 on usage
// errors and 1 on any other failure. Deferred cleanup runs before it returns.
func execute(o options) int {
	logger, err := newLogger(o.logLevel, o.development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	if o.modelPath == "" || len(o.paths) == 0 {
		flag.Usage()
		return 2
	}

	args := model.NewModelArgs{Name: model.Name(o.preset), Path: o.modelPath}
	if o.configPath != "" {
		base, err := models.DefaultConfig(args.Name)
		if err != nil {
			logger.Error("unknown preset", zap.String("preset", o.preset), zap.Error(err))
			return 1
		}
		cfg, err := model.LoadConfig(o.configPath, base)
		if err != nil {
			logger.Error("failed to load config", zap.Error(err))
			return 1
		}
		args.Config = &cfg
	}

	opts := engines.DefaultOptions()
	opts.Type = inference.EngineType(o.engineType)
	opts.Threads = o.threads
	opts.ONNX.Provider, err = onnx.ParseProvider(o.provider)
	if err != nil {
		logger.Error("invalid provider", zap.Error(err))
		return 1
	}

	factory := o.factory
	if factory == nil {
		factory = engines.Factory(opts, logger)
	}

	b := detector.NewBuilder().
		WithModel(args).
		WithEngineFactory(factory).
		WithChannelOrder(engines.ChannelOrder(opts.Type)).
		WithLogger(logger)
	if o.expr != "" {
		b = b.WithVerdict(o.expr)
	}

	d, err := b.Build()
	if err != nil {
		logger.Error("failed to build detector", zap.Error(err))
		return 1
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("failed to close engine", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := run(ctx, d, o.paths, o.concurrency, o.annotateDir, logger); err != nil {
		logger.Error("detection failed", zap.Error(err))
		return 1
	}

	return 0
}

// run prints one "<path> <verdict>" line per image.
func run(ctx context.Context, d *detector.Detector, paths []string, concurrency int, annotateDir string, logger *zap.Logger) error {
	imgs := make([]image.Image, len(paths))
	for i, path := range paths {
		img, err := images.Load(path)
		if err != nil {
			return err
		}
		imgs[i] = img
	}

	start := time.Now()
	sets, err := d.DetectBatch(ctx, imgs, concurrency)
	if err != nil {
		return err
	}
	logger.Debug("batch finished", zap.Int("images", len(imgs)), zap.Duration("elapsed", time.Since(start)))

	for i, set := range sets {
		for _, det := range set {
			logger.Debug("detection",
				zap.String("image", filepath.Base(paths[i])),
				zap.String("label", d.Label(det.Class)),
				zap.Float32("score", det.Score),
				zap.Stringer("box", det.Box),
			)
		}
		fmt.Printf("%s %t\n", paths[i], d.Verdict(set))

		if annotateDir != "" {
			if err := annotate(d, imgs[i], set, paths[i], annotateDir); err != nil {
				return err
			}
		}
	}

	return nil
}

// annotate writes a PNG copy of img with the detections drawn into dir.
func annotate(d *detector.Detector, img image.Image, set postprocess.DetectionSet, path, dir string) error {
	annotations := make([]images.Annotation, len(set))
	for i, det := range set {
		annotations[i] = images.Annotation{
			Box:   det.Box,
			Label: fmt.Sprintf("%s %.2f", d.Label(det.Class), det.Score),
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".png"

	return imaging.Save(images.Annotate(img, annotations, 2), filepath.Join(dir, name))
}

func newLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func presetNames() string {
	names := models.Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}

	return strings.Join(out, ", ")
}

func init() {
	flag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s -model <file> [options] <image> [image...]\n\n", name)
		fmt.Fprintf(os.Stderr, "Runs a detection model and prints a true/false verdict per image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -model yolov5s.onnx -image bus.jpg\n", name)
		fmt.Fprintf(os.Stderr, "  %s -preset ultraface -model rfb-320.onnx -verdict \"top-score>0.5\" face.png\n", name)
		fmt.Fprintf(os.Stderr, "  %s -preset mnn-yolov5 -engine tflite -model yolov5.tflite frames/*.jpg\n", name)
	}
}
