// Package inference - Inference engine interface shared by the runtime adapters.
//
// An engine consumes one preprocessed input tensor and returns its raw outputs as
// postprocess.View values, in the order the model's decode strategy expects them. Engines
// never decode or suppress detections themselves.
package inference

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// ErrEngineClosed is returned by Run after Close.
var ErrEngineClosed = errors.New("engine closed")

// Engine defines the interface for ML inference engines.
type Engine interface {
	// Run executes the model on input.
	Run(ctx context.Context, input postprocess.View) ([]postprocess.View, error)
	// Close releases native resources. Close is idempotent.
	Close() error
}

// EngineType is the type of the engine.
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library.
	EngineONNX EngineType = "onnx"
	// EngineOpenCV is the OpenCV DNN engine that uses gocv.
	EngineOpenCV EngineType = "opencv"
	// EngineTFLite is the TensorFlow Lite interpreter.
	EngineTFLite EngineType = "tflite"
	// EngineGorgonia runs a gorgonia expression graph in pure Go.
	EngineGorgonia EngineType = "gorgonia"
)

// Engines is a list of all supported engines.
var Engines = []EngineType{EngineONNX, EngineOpenCV, EngineTFLite, EngineGorgonia}

// Args are the engine-independent arguments for loading a model.
type Args struct {
	// ModelPath is the path to the model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// Inputs are the model input names. Engines that address inputs by index ignore them.
	Inputs []string `json:"inputs" yaml:"inputs"`
	// Outputs are the output names, in decode order.
	Outputs []string `json:"outputs" yaml:"outputs"`
	// Threads bounds intra-op parallelism; 0 lets the runtime decide.
	Threads int `json:"threads" yaml:"threads"`
}

// CheckInput verifies that input is a non-empty, consistent tensor.
func CheckInput(input postprocess.View) error {
	if err := input.Validate(); err != nil {
		return errors.Wrap(err, "engine input")
	}

	return nil
}

// CopyView returns a View that owns its data. Runtime adapters use it to detach outputs
// from native buffers that are released or reused after Run returns.
func CopyView(shape []int, data []float32) (postprocess.View, error) {
	s := make([]int, len(shape))
	copy(s, shape)
	d := make([]float32, len(data))
	copy(d, data)

	return postprocess.NewView(d, s...)
}
