package detector

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/nvr-ai/go-detect/verdict"
)

// EngineFactory opens an engine for a resolved model.
type EngineFactory func(m model.BaseModel) (inference.Engine, error)

// Builder helps build a Detector with a fluent API.
type Builder struct {
	model   model.Model
	engine  inference.Engine
	factory EngineFactory
	order   preprocess.ChannelOrder
	verdict string
	logger  *zap.Logger
	err     error
}

// NewBuilder creates a new detector builder.
//
// Returns:
//   - *Builder: The builder.
//
// @example
// d, err := detector.NewBuilder().
//
//	WithModel(model.NewModelArgs{Name: model.ModelNameYOLOv5, Path: "yolov5s.onnx"}).
//	WithEngineFactory(openONNX).
//	WithLogger(logger).
//	Build()
func NewBuilder() *Builder {
	return &Builder{order: preprocess.ChannelOrderCHW}
}

// WithModel resolves a model preset and applies the caller's overrides.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *Builder: The builder.
func (b *Builder) WithModel(args model.NewModelArgs) *Builder {
	if b.HasError() {
		return b
	}

	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m

	return b
}

// WithEngine sets an already opened engine. The detector takes ownership of it.
func (b *Builder) WithEngine(e inference.Engine) *Builder {
	if b.HasError() {
		return b
	}
	if e == nil {
		b.err = errors.New("engine is nil")
		return b
	}
	b.engine = e

	return b
}

// WithEngineFactory sets a factory that opens the engine once the model is known.
func (b *Builder) WithEngineFactory(f EngineFactory) *Builder {
	if b.HasError() {
		return b
	}
	b.factory = f

	return b
}

// WithChannelOrder sets the input layout expected by the engine. Defaults to CHW.
func (b *Builder) WithChannelOrder(order preprocess.ChannelOrder) *Builder {
	if b.HasError() {
		return b
	}
	b.order = order

	return b
}

// WithVerdict overrides the verdict expression of the model preset.
func (b *Builder) WithVerdict(expr string) *Builder {
	if b.HasError() {
		return b
	}
	if _, err := verdict.Parse(expr); err != nil {
		b.err = err
		return b
	}
	b.verdict = expr

	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if b.HasError() {
		return b
	}
	b.logger = logger

	return b
}

// HasError checks if the builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *Builder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the detector and panics if there is an error.
//
// Returns:
//   - *Detector: The detector.
func (b *Builder) MustBuild() *Detector {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}

	return d
}

// Build builds the detector.
//
// Returns:
//   - *Detector: The detector.
//   - error: The error if any.
func (b *Builder) Build() (*Detector, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}
	if b.engine == nil && b.factory == nil {
		return nil, errors.New("engine not configured")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := b.model.Options()
	cfg := opts.Config
	if b.verdict != "" {
		cfg.Verdict = b.verdict
	}

	preprocessor, err := preprocess.NewPreprocessor(cfg, b.order)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	pred, err := p.Verdict()
	if err != nil {
		return nil, err
	}

	engine := b.engine
	if engine == nil {
		engine, err = b.factory(opts)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open engine for %s", opts.Name)
		}
	}

	logger.Info("detector ready",
		zap.String("model", string(opts.Name)),
		zap.String("path", opts.Path),
		zap.String("strategy", string(cfg.Strategy)),
		zap.String("verdict", cfg.Verdict),
	)

	return &Detector{
		model:        opts,
		engine:       engine,
		preprocessor: preprocessor,
		pipeline:     p,
		verdict:      pred,
		logger:       logger.Named("detector"),
	}, nil
}
