// Package preprocess - Turn decoded images into model input tensors.
package preprocess

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder string

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX).
	ChannelOrderCHW ChannelOrder = "chw"
	// ChannelOrderHWC is Height-Width-Channel ordering (TFLite).
	ChannelOrderHWC ChannelOrder = "hwc"
)

// Result contains the input tensor and the geometry used to build it.
type Result struct {
	// Input is a [1, 3, H, W] or [1, H, W, 3] tensor depending on the channel order.
	Input postprocess.View
	// Geometry maps model-input coordinates back onto the source image.
	Geometry images.Geometry
}

// Preprocessor handles image preprocessing for one model configuration.
type Preprocessor struct {
	mode   images.GeometryMode
	target images.Dimensions
	norm   model.PreprocessConfig
	order  ChannelOrder
	fill   color.Color
	interp images.InterpolationFunction
}

// NewPreprocessor creates a preprocessor for cfg.
//
// Arguments:
//   - cfg: The model configuration; its geometry mode, input size and preprocess block are used.
//   - order: The channel ordering the engine expects.
//
// Returns:
//   - *Preprocessor: The preprocessor.
//   - error: model.ErrInvalidConfig when cfg does not validate.
//
// @example
// p, err := preprocess.NewPreprocessor(yolov5.DefaultConfig(), preprocess.ChannelOrderCHW)
func NewPreprocessor(cfg model.Config, order ChannelOrder) (*Preprocessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch order {
	case ChannelOrderCHW, ChannelOrderHWC:
	case "":
		order = ChannelOrderCHW
	default:
		return nil, errors.Wrapf(model.ErrInvalidConfig, "unknown channel order: %q", order)
	}

	pad := cfg.Preprocess.PadValue

	return &Preprocessor{
		mode:   cfg.GeometryMode,
		target: cfg.Target(),
		norm:   cfg.Preprocess,
		order:  order,
		fill:   color.RGBA{R: pad, G: pad, B: pad, A: 255},
		interp: images.Bilinear,
	}, nil
}

// Preprocess resizes img into the model input and packs it into a normalised tensor.
//
// Arguments:
//   - img: The decoded image.
//
// Returns:
//   - Result: The tensor and the geometry needed to map detections back onto img.
//   - error: images.ErrInvalidImage for nil or empty images.
func (p *Preprocessor) Preprocess(img image.Image) (Result, error) {
	if img == nil {
		return Result{}, errors.Wrap(images.ErrInvalidImage, "image is nil")
	}

	g, err := images.NewGeometry(p.mode, images.DimensionsOf(img), p.target)
	if err != nil {
		return Result{}, err
	}

	resized := images.LetterboxWith(img, g, p.fill, p.interp)
	data := p.imageToTensor(resized)
	p.normalize(data)

	var shape []int
	if p.order == ChannelOrderCHW {
		shape = []int{1, 3, p.target.Height, p.target.Width}
	} else {
		shape = []int{1, p.target.Height, p.target.Width, 3}
	}

	input, err := postprocess.NewView(data, shape...)
	if err != nil {
		return Result{}, err
	}

	return Result{Input: input, Geometry: g}, nil
}

// imageToTensor converts an RGBA image to float32 values in the 0-255 range.
func (p *Preprocessor) imageToTensor(img *image.RGBA) []float32 {
	width, height := p.target.Width, p.target.Height
	plane := width * height
	tensor := make([]float32, plane*3)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := img.PixOffset(x, y)
			ch0, ch1, ch2 := float32(img.Pix[off]), float32(img.Pix[off+1]), float32(img.Pix[off+2])
			if p.norm.BGR {
				ch0, ch2 = ch2, ch0
			}

			i := y*width + x
			if p.order == ChannelOrderCHW {
				tensor[i] = ch0
				tensor[plane+i] = ch1
				tensor[2*plane+i] = ch2
			} else {
				tensor[3*i] = ch0
				tensor[3*i+1] = ch1
				tensor[3*i+2] = ch2
			}
		}
	}

	return tensor
}

// normalize applies the configured normalisation in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.norm.Normalization {
	case model.NormalizeStandardize:
		plane := len(tensor) / 3
		for c := 0; c < 3; c++ {
			mean, std := p.norm.Mean[c], p.norm.Std[c]
			if p.order == ChannelOrderCHW {
				for i := c * plane; i < (c+1)*plane; i++ {
					tensor[i] = (tensor[i] - mean) / std
				}
				continue
			}
			for i := c; i < len(tensor); i += 3 {
				tensor[i] = (tensor[i] - mean) / std
			}
		}
	default:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	}
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
//   - ctx: Cancelling ctx stops images that have not started yet.
//   - imgs: Images to preprocess.
//   - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
//   - []Result: One result per image, in order.
//   - error: The first failure in image order.
//
// @example
// results, err := preprocessor.BatchPreprocess(ctx, []image.Image{a, b, c}, 4)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func (p *Preprocessor) BatchPreprocess(ctx context.Context, imgs []image.Image, maxConcurrency int) ([]Result, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]Result, len(imgs))
	errs := make([]error, len(imgs))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, img := range imgs {
		wg.Add(1)
		go func(idx int, img image.Image) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}

			result, err := p.Preprocess(img)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "failed to preprocess image %d", idx)
				return
			}
			results[idx] = result
		}(i, img)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
