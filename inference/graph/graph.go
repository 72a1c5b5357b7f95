// Package graph - Pure Go engine running a gorgonia expression graph.
//
// The graph is built once by a Builder and executed on a tape machine for every Run. It is
// the engine used when no native runtime is available and in tests.
package graph

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Builder adds the network to g and returns its output nodes in decode order.
type Builder func(g *G.ExprGraph, input *G.Node) ([]*G.Node, error)

// Graph is a compiled expression graph with a single float32 input.
type Graph struct {
	g       *G.ExprGraph
	input   *G.Node
	outputs []*G.Node
	machine G.VM
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ inference.Engine = (*Graph)(nil)

// New builds and compiles a graph.
//
// Arguments:
//   - inputShape: The input tensor shape, for example [1, 3, 416, 416].
//   - build: Adds the network and returns its outputs.
//   - logger: Logger for lifecycle messages; nil disables logging.
//
// Returns:
//   - *Graph: The engine.
//   - error: The error if any.
//
// Example:
// ```go
//
//	e, err := graph.New([]int{1, 3, 416, 416}, func(g *G.ExprGraph, x *G.Node) ([]*G.Node, error) {
//	    return yolo.Build(g, x)
//	}, logger)
//
// ```
func New(inputShape []int, build Builder, logger *zap.Logger) (*Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("graph")

	if len(inputShape) == 0 {
		return nil, errors.Wrap(postprocess.ErrInvalidTensor, "input shape is empty")
	}
	if build == nil {
		return nil, errors.New("graph builder is required")
	}

	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, len(inputShape), G.WithShape(inputShape...), G.WithName("input"))

	outputs, err := build(g, input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build graph")
	}
	if len(outputs) == 0 {
		return nil, errors.New("graph has no outputs")
	}

	logger.Debug("graph compiled", zap.Ints("input", inputShape), zap.Int("outputs", len(outputs)))

	return &Graph{
		g:       g,
		input:   input,
		outputs: outputs,
		machine: G.NewTapeMachine(g),
		logger:  logger,
	}, nil
}

// Run implements inference.Engine.
func (e *Graph) Run(ctx context.Context, input postprocess.View) ([]postprocess.View, error) {
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

	if want := []int(e.input.Shape()); !slices.Equal(want, input.Shape) {
		return nil, errors.Wrapf(postprocess.ErrInvalidTensor, "input shape %v, graph expects %v", input.Shape, want)
	}

	if err := G.Let(e.input, DenseFromView(input)); err != nil {
		return nil, errors.Wrap(err, "can't let input")
	}
	defer e.machine.Reset()

	if err := e.machine.RunAll(); err != nil {
		return nil, errors.Wrap(err, "can't run tape machine")
	}

	views := make([]postprocess.View, len(e.outputs))
	for i, out := range e.outputs {
		v, err := ViewFromValue(out.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "output %d (%s)", i, out.Name())
		}
		views[i] = v
	}

	return views, nil
}

// Close releases the tape machine. It is safe to call more than once.
func (e *Graph) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	return e.machine.Close()
}

// DenseFromView wraps a copy of v's data in a dense tensor.
func DenseFromView(v postprocess.View) *tensor.Dense {
	data := make([]float32, len(v.Data))
	copy(data, v.Data)

	return tensor.New(tensor.WithShape(v.Shape...), tensor.WithBacking(data))
}

// ViewFromValue copies a float32 gorgonia value into a View. Scalars become shape [1].
func ViewFromValue(val G.Value) (postprocess.View, error) {
	switch v := val.(type) {
	case nil:
		return postprocess.View{}, errors.Wrap(postprocess.ErrInvalidTensor, "node has no value")
	case *G.F32:
		return inference.CopyView([]int{1}, []float32{float32(*v)})
	case tensor.Tensor:
		return ViewFromTensor(v)
	default:
		return postprocess.View{}, errors.Wrapf(postprocess.ErrInvalidTensor, "unsupported value type %T", val)
	}
}

// ViewFromTensor copies a float32 tensor into a View, materialising strided views first.
func ViewFromTensor(t tensor.Tensor) (postprocess.View, error) {
	if d, ok := t.(*tensor.Dense); ok && d.IsMaterializable() {
		t = d.Materialize()
	}

	switch data := t.Data().(type) {
	case []float32:
		shape := []int(t.Shape())
		if len(shape) == 0 {
			shape = []int{len(data)}
		}
		return inference.CopyView(shape, data)
	case float32:
		return inference.CopyView([]int{1}, []float32{data})
	default:
		return postprocess.View{}, errors.Wrapf(postprocess.ErrInvalidTensor, "tensor of %v is not float32", t.Dtype())
	}
}
