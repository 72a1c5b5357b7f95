// Package onnx - ONNX Runtime engine.
package onnx

import (
	"os"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides DefaultLibraryPath.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ErrUnsupportedProvider is returned for unknown execution providers.
var ErrUnsupportedProvider = errors.New("unsupported execution provider")

// ProviderBackend is the execution provider used by the session.
type ProviderBackend string

const (
	// CPUProviderBackend uses the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// ParseProvider maps a name to a ProviderBackend. An empty name selects the CPU.
func ParseProvider(name string) (ProviderBackend, error) {
	switch p := ProviderBackend(name); p {
	case "":
		return CPUProviderBackend, nil
	case CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
		return p, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedProvider, "%q", name)
	}
}

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// The size limit of the device memory arena in bytes. 0 leaves the runtime default.
	GPUMemLimit int64 `json:"gpu_mem_limit" yaml:"gpu_mem_limit"`
}

func (o CUDAOptions) native() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}

	values := map[string]string{
		"device_id": strconv.Itoa(o.DeviceID),
	}
	if o.GPUMemLimit > 0 {
		values["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if err := opts.Update(values); err != nil {
		opts.Destroy()
		return nil, err
	}

	return opts, nil
}

// Config controls how the ONNX Runtime session is created.
type Config struct {
	// Provider selects the execution provider.
	Provider ProviderBackend `json:"provider" yaml:"provider"`
	// LibraryPath is the onnxruntime shared library. Empty uses DefaultLibraryPath.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// GraphOptimizationLevel controls the level of graph optimization. The zero value keeps
	// the runtime default.
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level" yaml:"graph_optimization_level"`
	// IntraOpNumThreads sets threads for parallelizing ops. 0 lets the runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// CUDA options, used with CUDAProviderBackend.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreMLFlags are passed to the CoreML provider.
	CoreMLFlags uint32 `json:"coreml_flags" yaml:"coreml_flags"`
	// OpenVINO options, used with OpenVINOProviderBackend.
	// See:
	// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
	OpenVINO map[string]string `json:"openvino" yaml:"openvino"`
	// Precision is the OpenVINO inference precision. Empty keeps the device default.
	Precision Precision `json:"precision" yaml:"precision"`
}

// Precision represents the inference precision requested from OpenVINO.
type Precision string

const (
	// PrecisionAccuracy keeps the model's own precision (OpenVINO's default).
	PrecisionAccuracy Precision = "ACCURACY"
	// PrecisionFP32 represents 32-bit floating point precision.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 represents 16-bit floating point precision.
	PrecisionFP16 Precision = "FP16"
)

// openVINOOptions merges Precision into the OpenVINO provider options.
func (c Config) openVINOOptions() map[string]string {
	opts := make(map[string]string, len(c.OpenVINO)+1)
	for k, v := range c.OpenVINO {
		opts[k] = v
	}
	if c.Precision != "" {
		opts["precision"] = string(c.Precision)
	}

	return opts
}

// DefaultConfig returns a CPU configuration with extended graph optimisation.
func DefaultConfig() Config {
	return Config{
		Provider:               CPUProviderBackend,
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
		OpenVINO: map[string]string{
			"device_type": "CPU",
		},
	}
}

// libraryPath resolves the shared library: explicit path, then environment, then default.
func (c Config) libraryPath() string {
	if c.LibraryPath != "" {
		return c.LibraryPath
	}
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p
	}

	return DefaultLibraryPath()
}

// sessionOptions builds native session options. The caller must Destroy them.
func (c Config) sessionOptions() (*ort.SessionOptions, error) {
	provider, err := ParseProvider(string(c.Provider))
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	if err := c.applyThreads(options); err != nil {
		options.Destroy()
		return nil, err
	}

	switch provider {
	case CUDAProviderBackend:
		cuda, err := c.CUDA.native()
		if err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to create CUDA provider options")
		}
		defer cuda.Destroy()
		err = options.AppendExecutionProviderCUDA(cuda)
		if err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to enable CUDA provider")
		}
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreMLFlags); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to enable CoreML provider")
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.openVINOOptions()); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to enable OpenVINO provider")
		}
	}

	return options, nil
}

func (c Config) applyThreads(options *ort.SessionOptions) error {
	if c.GraphOptimizationLevel != 0 {
		if err := options.SetGraphOptimizationLevel(c.GraphOptimizationLevel); err != nil {
			return errors.Wrap(err, "failed to set graph optimization level")
		}
	}
	if c.IntraOpNumThreads > 0 {
		if err := options.SetIntraOpNumThreads(c.IntraOpNumThreads); err != nil {
			return errors.Wrap(err, "failed to set intra-op threads")
		}
	}
	if c.InterOpNumThreads > 0 {
		if err := options.SetInterOpNumThreads(c.InterOpNumThreads); err != nil {
			return errors.Wrap(err, "failed to set inter-op threads")
		}
	}

	return nil
}

// DefaultLibraryPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
