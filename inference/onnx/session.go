package onnx

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment loads the shared library and initializes the process-wide ORT
// environment. Only the first library path takes effect.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(libPath)
		envErr = ort.InitializeEnvironment()
	})

	return envErr
}

// Session runs an ONNX model with onnxruntime. Outputs are allocated by the runtime on
// every call, so models with dynamic output shapes are supported.
type Session struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

var _ inference.Engine = (*Session)(nil)

// NewSession creates a new ONNX Runtime session.
//
// Order of operations:
//  1. Environment setup: loads the shared library once per process.
//  2. Session options: threading, optimisation level and execution provider.
//  3. Session creation: loads the model and binds input and output names.
//
// Arguments:
//   - args: Model path and tensor names. Exactly one input is supported.
//   - cfg: Runtime configuration.
//   - logger: Logger for lifecycle messages; nil disables logging.
//
// Returns:
//   - *Session: The session.
//   - error: The error if any.
//
// @example
// s, err := onnx.NewSession(inference.Args{ModelPath: "yolov5s.onnx", Inputs: []string{"images"}, Outputs: []string{"output0"}}, onnx.DefaultConfig(), logger)
//
//	if err != nil {
//	    return err
//	}
//
// defer s.Close()
func NewSession(args inference.Args, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("onnx")

	if args.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if len(args.Inputs) != 1 {
		return nil, errors.Errorf("exactly one input name is required, got %d", len(args.Inputs))
	}
	if len(args.Outputs) == 0 {
		return nil, errors.New("at least one output name is required")
	}
	if args.Threads > 0 && cfg.IntraOpNumThreads == 0 {
		cfg.IntraOpNumThreads = args.Threads
	}

	libPath := cfg.libraryPath()
	if err := initEnvironment(libPath); err != nil {
		return nil, errors.Wrapf(err, "failed to initialize onnxruntime from %s", libPath)
	}

	options, err := cfg.sessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(args.ModelPath, args.Inputs, args.Outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session for %s", args.ModelPath)
	}

	logger.Info("session created",
		zap.String("model", args.ModelPath),
		zap.String("provider", string(cfg.Provider)),
		zap.Strings("outputs", args.Outputs),
	)

	return &Session{
		session: session,
		inputs:  append([]string(nil), args.Inputs...),
		outputs: append([]string(nil), args.Outputs...),
		logger:  logger,
	}, nil
}

// Run implements inference.Engine.
func (s *Session) Run(ctx context.Context, input postprocess.View) ([]postprocess.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := inference.CheckInput(input); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, inference.ErrEngineClosed
	}

	tensor, err := ort.NewTensor(ort.NewShape(toShape(input.Shape)...), input.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	defer tensor.Destroy()

	outputs := make([]ort.Value, len(s.outputs))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run([]ort.Value{tensor}, outputs); err != nil {
		return nil, errors.Wrap(err, "onnxruntime run failed")
	}

	views := make([]postprocess.View, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Wrapf(postprocess.ErrInvalidTensor, "output %q is not a float32 tensor", s.outputs[i])
		}
		views[i], err = ViewFromTensor(t)
		if err != nil {
			return nil, errors.Wrapf(err, "output %q", s.outputs[i])
		}
	}

	return views, nil
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.session.Destroy(); err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	s.logger.Debug("session closed")

	return nil
}

// ViewFromTensor copies an ORT tensor into a View.
func ViewFromTensor(t *ort.Tensor[float32]) (postprocess.View, error) {
	return inference.CopyView(fromShape(t.GetShape()), t.GetData())
}

func toShape(dims []int) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		out[i] = int64(d)
	}

	return out
}

func fromShape(shape ort.Shape) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}

	return out
}
