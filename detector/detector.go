// Package detector - Image in, detections and a verdict out.
//
// A Detector wires a model preset to an inference engine: images are preprocessed into the
// model input, run through the engine, and the raw outputs are decoded, suppressed and
// judged by a pipeline.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/nvr-ai/go-detect/verdict"
)

// Detector runs a model end to end on decoded images.
type Detector struct {
	model        model.BaseModel
	engine       inference.Engine
	preprocessor *preprocess.Preprocessor
	pipeline     *pipeline.Pipeline
	verdict      verdict.Predicate
	logger       *zap.Logger
}

// Model returns the resolved model options.
func (d *Detector) Model() model.BaseModel {
	return d.model
}

// Label returns the class name for a detection's label id.
func (d *Detector) Label(class int) string {
	return d.model.Classes.Label(class)
}

// Timings holds the wall time spent in each stage of a Detect call.
type Timings struct {
	Preprocess  time.Duration `json:"preprocess"`
	Inference   time.Duration `json:"inference"`
	Postprocess time.Duration `json:"postprocess"`
}

// Total returns the sum of all stages.
func (t Timings) Total() time.Duration {
	return t.Preprocess + t.Inference + t.Postprocess
}

// Detect runs the model on img.
//
// Arguments:
//   - ctx: Cancels the engine call.
//   - img: The decoded image.
//
// Returns:
//   - postprocess.DetectionSet: Detections in img pixel coordinates, highest score first.
//   - error: ErrInvalidImage, ErrInvalidTensor or an engine error.
func (d *Detector) Detect(ctx context.Context, img image.Image) (postprocess.DetectionSet, error) {
	set, _, err := d.DetectTimed(ctx, img)
	return set, err
}

// DetectTimed is Detect that also reports per-stage timings. Stages that did not run
// are zero.
func (d *Detector) DetectTimed(ctx context.Context, img image.Image) (postprocess.DetectionSet, Timings, error) {
	var timings Timings

	start := time.Now()
	prepared, err := d.preprocessor.Preprocess(img)
	timings.Preprocess = time.Since(start)
	if err != nil {
		return nil, timings, err
	}

	start = time.Now()
	outputs, err := d.engine.Run(ctx, prepared.Input)
	timings.Inference = time.Since(start)
	if err != nil {
		return nil, timings, errors.Wrapf(err, "%s inference", d.model.Name)
	}

	start = time.Now()
	set, err := d.pipeline.Run(prepared.Geometry.Source, outputs...)
	timings.Postprocess = time.Since(start)

	return set, timings, err
}

// Evaluate runs Detect and applies the configured verdict.
func (d *Detector) Evaluate(ctx context.Context, img image.Image) (bool, postprocess.DetectionSet, error) {
	set, err := d.Detect(ctx, img)
	if err != nil {
		return false, nil, err
	}

	ok := d.Verdict(set)
	d.logger.Debug("verdict",
		zap.String("model", string(d.model.Name)),
		zap.Int("detections", len(set)),
		zap.Bool("verdict", ok),
	)

	return ok, set, nil
}

// Verdict applies the configured verdict to a detection set.
func (d *Detector) Verdict(set postprocess.DetectionSet) bool {
	return d.verdict(set)
}

// DetectBatch runs the model on several images. Preprocessing and post-processing run
// concurrently; engine calls are issued one at a time.
//
// Arguments:
//   - ctx: Cancels outstanding work.
//   - imgs: The decoded images.
//   - maxConcurrency: Maximum number of images preprocessed or post-processed at once.
//
// Returns:
//   - []postprocess.DetectionSet: One set per image, in order.
//   - error: The first failure.
func (d *Detector) DetectBatch(ctx context.Context, imgs []image.Image, maxConcurrency int) ([]postprocess.DetectionSet, error) {
	prepared, err := d.preprocessor.BatchPreprocess(ctx, imgs, maxConcurrency)
	if err != nil {
		return nil, err
	}

	jobs := make([]pipeline.Job, len(prepared))
	for i, p := range prepared {
		outputs, err := d.engine.Run(ctx, p.Input)
		if err != nil {
			return nil, errors.Wrapf(err, "%s inference on image %d", d.model.Name, i)
		}
		jobs[i] = pipeline.Job{Dimensions: p.Geometry.Source, Outputs: outputs}
	}

	return pipeline.RunBatch(ctx, d.pipeline, jobs, maxConcurrency)
}

// Geometry returns the mapping the detector uses for an image of size dims.
func (d *Detector) Geometry(dims images.Dimensions) (images.Geometry, error) {
	return d.pipeline.Geometry(dims)
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
