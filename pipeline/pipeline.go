// Package pipeline - Decode, suppress and judge detections from raw engine outputs.
//
// A Pipeline binds one validated model.Config to a decoder. It holds no per-call state, so
// a single Pipeline may be shared by any number of goroutines.
package pipeline

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/verdict"
)

// Pipeline turns engine outputs for one image into a DetectionSet.
type Pipeline struct {
	config  model.Config
	decoder postprocess.Decoder
	nms     postprocess.NMSConfig
	logger  *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for per-run debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New validates config and builds a Pipeline.
//
// Arguments:
//   - config: The configuration bundle.
//   - opts: Optional settings such as WithLogger.
//
// Returns:
//   - *Pipeline: The ready pipeline.
//   - error: model.ErrInvalidConfig when config does not validate.
//
// Example:
// ```go
//
//	p, err := pipeline.New(yolov5.DefaultConfig(), pipeline.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	set, err := p.Run(images.Dimensions{Width: 1920, Height: 1080}, output)
//
// ```
func New(config model.Config, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	decoder, err := postprocess.NewDecoder(config.DecodeConfig())
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:  config,
		decoder: decoder,
		nms:     config.NMSConfig(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")

	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() model.Config {
	return p.config
}

// Geometry returns the mapping between an image of size dims and the model input.
func (p *Pipeline) Geometry(dims images.Dimensions) (images.Geometry, error) {
	return images.NewGeometry(p.config.GeometryMode, dims, p.config.Target())
}

// Run decodes outputs, applies NMS and, when configured, clamps boxes to the image.
//
// Arguments:
//   - dims: The original image size.
//   - outputs: Engine outputs in the order the decode strategy expects.
//
// Returns:
//   - postprocess.DetectionSet: Detections in image pixels, highest score first.
//   - error: ErrInvalidImage or ErrInvalidTensor.
func (p *Pipeline) Run(dims images.Dimensions, outputs ...postprocess.View) (postprocess.DetectionSet, error) {
	g, err := p.Geometry(dims)
	if err != nil {
		return nil, err
	}

	proposals, err := p.decoder.Decode(g, outputs...)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", p.config.Strategy)
	}

	set := postprocess.ApplyNMS(proposals, p.nms)
	if p.config.ClampBoxes {
		set = set.Clamp(dims)
	}

	if ce := p.logger.Check(zap.DebugLevel, "post-processed outputs"); ce != nil {
		ce.Write(
			zap.Int("width", dims.Width),
			zap.Int("height", dims.Height),
			zap.Int("proposals", len(proposals)),
			zap.Int("detections", len(set)),
		)
	}

	return set, nil
}

// Evaluate runs the pipeline and applies pred to the result.
//
// Returns:
//   - bool: The verdict.
//   - postprocess.DetectionSet: The detections the verdict was computed from.
//   - error: Any error from Run; the verdict is false in that case.
func (p *Pipeline) Evaluate(dims images.Dimensions, pred verdict.Predicate, outputs ...postprocess.View) (bool, postprocess.DetectionSet, error) {
	set, err := p.Run(dims, outputs...)
	if err != nil {
		return false, nil, err
	}

	return pred(set), set, nil
}

// Verdict returns the predicate named by the configuration, or NonEmpty when none is set.
func (p *Pipeline) Verdict() (verdict.Predicate, error) {
	if p.config.Verdict == "" {
		return verdict.NonEmpty(), nil
	}

	return verdict.Parse(p.config.Verdict)
}
