// Package tflite - TensorFlow Lite engine.
package tflite

import (
	"context"
	"slices"
	"sync"

	"github.com/mattn/go-tflite"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Interpreter runs a float32 TFLite model. Inputs are expected in HWC order.
type Interpreter struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	order       []int
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ inference.Engine = (*Interpreter)(nil)

// NewInterpreter loads a model and allocates its tensors.
//
// Arguments:
//   - args: Model path, thread count and, optionally, output tensor names in decode order.
//     When Outputs is empty the model's output order is used.
//   - logger: Receives interpreter error reports; nil disables logging.
//
// Returns:
//   - *Interpreter: The engine.
//   - error: The error if any.
func NewInterpreter(args inference.Args, logger *zap.Logger) (*Interpreter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tflite")

	model := tflite.NewModelFromFile(args.ModelPath)
	if model == nil {
		return nil, errors.Errorf("cannot load model %s", args.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	if args.Threads > 0 {
		options.SetNumThread(args.Threads)
	}
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Warn("interpreter", zap.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("cannot create interpreter")
	}

	e := &Interpreter{model: model, options: options, interpreter: interpreter, logger: logger}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		e.release()
		return nil, errors.Errorf("allocate tensors failed: %v", status)
	}

	order, err := outputOrder(interpreter, args.Outputs)
	if err != nil {
		e.release()
		return nil, err
	}
	e.order = order

	logger.Info("model loaded", zap.String("model", args.ModelPath), zap.Int("outputs", len(order)))

	return e, nil
}

// Run implements inference.Engine.
func (e *Interpreter) Run(ctx context.Context, input postprocess.View) ([]postprocess.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := inference.CheckInput(input); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, inference.ErrEngineClosed
	}

	in := e.interpreter.GetInputTensor(0)
	if in.Type() != tflite.Float32 {
		return nil, errors.Wrapf(postprocess.ErrInvalidTensor, "input type %v is not float32", in.Type())
	}
	if want := shapeOf(in); !slices.Equal(want, input.Shape) {
		return nil, errors.Wrapf(postprocess.ErrInvalidTensor, "input shape %v, model expects %v", input.Shape, want)
	}
	if err := in.SetFloat32s(input.Data); err != nil {
		return nil, errors.Wrap(err, "failed to set input")
	}

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Errorf("invoke failed: %v", status)
	}

	views := make([]postprocess.View, len(e.order))
	for i, idx := range e.order {
		v, err := ViewFromTensor(e.interpreter.GetOutputTensor(idx))
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", idx)
		}
		views[i] = v
	}

	return views, nil
}

// Close releases the interpreter. It is safe to call more than once.
func (e *Interpreter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		e.release()
	}

	return nil
}

func (e *Interpreter) release() {
	e.interpreter.Delete()
	e.options.Delete()
	e.model.Delete()
}

// ViewFromTensor copies a float32 TFLite tensor into a View.
func ViewFromTensor(t *tflite.Tensor) (postprocess.View, error) {
	if t == nil {
		return postprocess.View{}, errors.Wrap(postprocess.ErrInvalidTensor, "nil tensor")
	}
	if t.Type() != tflite.Float32 {
		return postprocess.View{}, errors.Wrapf(postprocess.ErrInvalidTensor, "tensor %s has type %v", t.Name(), t.Type())
	}

	return inference.CopyView(shapeOf(t), t.Float32s())
}

// outputOrder maps requested output names to tensor indices.
func outputOrder(interpreter *tflite.Interpreter, names []string) ([]int, error) {
	count := interpreter.GetOutputTensorCount()
	if len(names) == 0 {
		order := make([]int, count)
		for i := range order {
			order[i] = i
		}
		return order, nil
	}

	byName := make(map[string]int, count)
	for i := 0; i < count; i++ {
		byName[interpreter.GetOutputTensor(i).Name()] = i
	}

	order := make([]int, len(names))
	for i, name := range names {
		idx, ok := byName[name]
		if !ok {
			return nil, errors.Errorf("model has no output named %q", name)
		}
		order[i] = idx
	}

	return order, nil
}

func shapeOf(t *tflite.Tensor) []int {
	shape := make([]int, t.NumDims())
	for i := range shape {
		shape[i] = t.Dim(i)
	}

	return shape
}
