// Package opencv - OpenCV DNN engine.
package opencv

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Config selects the DNN backend and target device.
type Config struct {
	// ConfigPath is the optional network description for Darknet or Caffe models.
	ConfigPath string `json:"config_path" yaml:"config_path"`
	// Backend is a gocv backend name such as "opencv", "openvino" or "cuda".
	Backend string `json:"backend" yaml:"backend"`
	// Target is a gocv target name such as "cpu", "fp16" or "cuda".
	Target string `json:"target" yaml:"target"`
}

// DefaultConfig runs on the CPU with the OpenCV backend.
func DefaultConfig() Config {
	return Config{Backend: "opencv", Target: "cpu"}
}

// Net runs a model with the OpenCV DNN module. A gocv.Net is not safe for concurrent use,
// so Run calls are serialised.
type Net struct {
	net     gocv.Net
	outputs []string
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ inference.Engine = (*Net)(nil)

// NewNet loads a model with gocv.ReadNet.
//
// Arguments:
//   - args: Model path and output layer names. When Outputs is empty every unconnected
//     output layer is used.
//   - cfg: Backend and target selection.
//   - logger: Logger for lifecycle messages; nil disables logging.
//
// Returns:
//   - *Net: The engine.
//   - error: The error if any.
func NewNet(args inference.Args, cfg Config, logger *zap.Logger) (*Net, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("opencv")

	net := gocv.ReadNet(args.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to read network from %s", args.ModelPath)
	}

	if err := net.SetPreferableBackend(gocv.ParseNetBackend(cfg.Backend)); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "failed to set backend")
	}
	if err := net.SetPreferableTarget(gocv.ParseNetTarget(cfg.Target)); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "failed to set target")
	}

	outputs := append([]string(nil), args.Outputs...)
	if len(outputs) == 0 {
		outputs = outputNames(&net)
	}
	if len(outputs) == 0 {
		net.Close()
		return nil, errors.Errorf("no output layers found in %s", args.ModelPath)
	}

	logger.Info("network loaded",
		zap.String("model", args.ModelPath),
		zap.String("backend", cfg.Backend),
		zap.String("target", cfg.Target),
		zap.Strings("outputs", outputs),
	)

	return &Net{net: net, outputs: outputs, logger: logger}, nil
}

// Run implements inference.Engine. The input must already be a blob, typically [1, 3, H, W].
func (n *Net) Run(ctx context.Context, input postprocess.View) ([]postprocess.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := inference.CheckInput(input); err != nil {
		return nil, err
	}

	blob := gocv.NewMatWithSizes(input.Shape, gocv.MatTypeCV32F)
	defer blob.Close()

	dst, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to access input blob")
	}
	copy(dst, input.Data)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, inference.ErrEngineClosed
	}

	n.net.SetInput(blob, "")
	outs := n.net.ForwardLayers(n.outputs)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	views := make([]postprocess.View, len(outs))
	for i, m := range outs {
		views[i], err = ViewFromMat(m)
		if err != nil {
			return nil, errors.Wrapf(err, "output %q", n.outputs[i])
		}
	}

	return views, nil
}

// Close releases the network. It is safe to call more than once.
func (n *Net) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	return n.net.Close()
}

// ViewFromMat copies a float32 Mat into a View with the Mat's full N-dimensional shape.
func ViewFromMat(m gocv.Mat) (postprocess.View, error) {
	if m.Empty() {
		return postprocess.View{}, errors.Wrap(postprocess.ErrInvalidTensor, "empty mat")
	}
	if m.Type() != gocv.MatTypeCV32F {
		return postprocess.View{}, errors.Wrapf(postprocess.ErrInvalidTensor, "mat type %v is not float32", m.Type())
	}

	data, err := m.DataPtrFloat32()
	if err != nil {
		return postprocess.View{}, errors.Wrap(postprocess.ErrInvalidTensor, err.Error())
	}

	return inference.CopyView(m.Size(), data)
}

func outputNames(net *gocv.Net) []string {
	var names []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		if name := layer.GetName(); name != "_input" {
			names = append(names, name)
		}
		layer.Close()
	}

	return names
}
