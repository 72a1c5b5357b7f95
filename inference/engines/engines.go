// Package engines - Opens a runtime adapter for a resolved model.
//
// This is the one place that links every native runtime; libraries that only need the
// inference.Engine interface should not import it.
package engines

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/onnx"
	"github.com/nvr-ai/go-detect/inference/opencv"
	"github.com/nvr-ai/go-detect/inference/tflite"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
)

// ErrUnsupportedEngine is returned for engine types that cannot be opened from a file.
var ErrUnsupportedEngine = errors.New("unsupported engine")

// Options configures the runtime adapters.
type Options struct {
	Type    inference.EngineType `json:"type" yaml:"type"`
	Threads int                  `json:"threads" yaml:"threads"`
	ONNX    onnx.Config          `json:"onnx" yaml:"onnx"`
	OpenCV  opencv.Config        `json:"opencv" yaml:"opencv"`
}

// DefaultOptions returns an ONNX Runtime CPU configuration.
func DefaultOptions() Options {
	return Options{
		Type:   inference.EngineONNX,
		ONNX:   onnx.DefaultConfig(),
		OpenCV: opencv.DefaultConfig(),
	}
}

// ChannelOrder returns the input layout the engine type expects.
func ChannelOrder(t inference.EngineType) preprocess.ChannelOrder {
	if t == inference.EngineTFLite {
		return preprocess.ChannelOrderHWC
	}

	return preprocess.ChannelOrderCHW
}

// Open loads m with the engine selected by opts.
//
// Arguments:
//   - m: The resolved model; its Path, Inputs and Outputs are passed to the runtime.
//   - opts: The engine selection and runtime settings.
//   - logger: Passed to the adapter.
//
// Returns:
//   - inference.Engine: The opened engine.
//   - error: ErrUnsupportedEngine, or the adapter's load error.
func Open(m model.BaseModel, opts Options, logger *zap.Logger) (inference.Engine, error) {
	args := inference.Args{
		ModelPath: m.Path,
		Inputs:    m.Inputs,
		Outputs:   m.Outputs,
		Threads:   opts.Threads,
	}
	if args.ModelPath == "" {
		return nil, errors.Errorf("model %s has no path", m.Name)
	}

	switch opts.Type {
	case inference.EngineONNX, "":
		cfg := opts.ONNX
		if cfg.IntraOpNumThreads == 0 {
			cfg.IntraOpNumThreads = opts.Threads
		}
		return onnx.NewSession(args, cfg, logger)
	case inference.EngineOpenCV:
		return opencv.NewNet(args, opts.OpenCV, logger)
	case inference.EngineTFLite:
		return tflite.NewInterpreter(args, logger)
	default:
		return nil, errors.Wrapf(ErrUnsupportedEngine, "%q", opts.Type)
	}
}

// Factory binds opts and logger for use with detector.Builder.WithEngineFactory.
func Factory(opts Options, logger *zap.Logger) func(model.BaseModel) (inference.Engine, error) {
	return func(m model.BaseModel) (inference.Engine, error) {
		return Open(m, opts, logger)
	}
}
