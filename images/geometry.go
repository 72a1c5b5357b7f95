package images

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrInvalidImage is returned when image or model-input dimensions are not positive.
var ErrInvalidImage = errors.New("invalid image")

// GeometryMode selects how a source image is mapped onto the model input.
type GeometryMode string

const (
	// ModeLetterbox scales uniformly by min(tw/w, th/h) and centres the result with padding.
	ModeLetterbox GeometryMode = "letterbox"
	// ModePlainResize stretches each axis independently and adds no padding.
	ModePlainResize GeometryMode = "plain-resize"
)

// Dimensions is the width and height of an image in pixels.
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Validate returns ErrInvalidImage when either side is not positive.
func (d Dimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return errors.Wrapf(ErrInvalidImage, "dimensions %dx%d must be positive", d.Width, d.Height)
	}

	return nil
}

// LetterboxParams describes a uniform scale followed by a padding offset.
type LetterboxParams struct {
	// Scale is r = min(tw/w, th/h).
	Scale float32 `json:"scale" yaml:"scale"`
	// PadX is the left padding dw in model-input pixels.
	PadX int `json:"pad_x" yaml:"pad_x"`
	// PadY is the top padding dh in model-input pixels.
	PadY int `json:"pad_y" yaml:"pad_y"`
}

// Geometry maps coordinates between original-image space and model-input space.
//
// Both modes share the same affine form: forward is (x*ScaleX + PadX, y*ScaleY + PadY) and
// inverse is ((x-PadX)/ScaleX, (y-PadY)/ScaleY). In letterbox mode ScaleX == ScaleY.
type Geometry struct {
	Mode   GeometryMode
	Source Dimensions
	Target Dimensions
	// Resized is the size of the scaled image content inside Target.
	Resized Dimensions
	ScaleX  float32
	ScaleY  float32
	PadX    int
	PadY    int
}

// NewGeometry computes the mapping for an image of size src fed to a model of size target.
//
// For letterbox mode the scaled size is round(w*r) x round(h*r) and the padding is split
// with floor((tw - new_w) / 2) on the left and top.
//
// Arguments:
//   - mode: ModeLetterbox or ModePlainResize.
//   - src: The original image dimensions.
//   - target: The model input dimensions.
//
// Returns:
//   - Geometry: The forward/inverse mapping.
//   - error: ErrInvalidImage for non-positive dimensions, or an error for an unknown mode.
//
// Example:
// ```go
//
//	g, _ := NewGeometry(ModeLetterbox, Dimensions{100, 200}, Dimensions{640, 640})
//	// g.ScaleX == 3.2, g.Resized == {320, 640}, g.PadX == 160, g.PadY == 0
//
// ```
func NewGeometry(mode GeometryMode, src, target Dimensions) (Geometry, error) {
	if err := src.Validate(); err != nil {
		return Geometry{}, errors.Wrap(err, "source image")
	}
	if err := target.Validate(); err != nil {
		return Geometry{}, errors.Wrap(err, "model input")
	}

	g := Geometry{Mode: mode, Source: src, Target: target}

	switch mode {
	case ModeLetterbox:
		r := math32.Min(
			float32(target.Height)/float32(src.Height),
			float32(target.Width)/float32(src.Width),
		)
		newW := min(max(1, int(math32.Round(float32(src.Width)*r))), target.Width)
		newH := min(max(1, int(math32.Round(float32(src.Height)*r))), target.Height)

		g.ScaleX, g.ScaleY = r, r
		g.Resized = Dimensions{Width: newW, Height: newH}
		g.PadX = (target.Width - newW) / 2
		g.PadY = (target.Height - newH) / 2
	case ModePlainResize:
		g.ScaleX = float32(target.Width) / float32(src.Width)
		g.ScaleY = float32(target.Height) / float32(src.Height)
		g.Resized = target
	default:
		return Geometry{}, errors.Errorf("unknown geometry mode: %q", mode)
	}

	return g, nil
}

// Params returns the letterbox parameters (r, dw, dh). In plain-resize mode Scale is the
// horizontal scale and both paddings are zero.
func (g Geometry) Params() LetterboxParams {
	return LetterboxParams{Scale: g.ScaleX, PadX: g.PadX, PadY: g.PadY}
}

// Forward maps a point from original-image space into model-input space.
func (g Geometry) Forward(x, y float32) (float32, float32) {
	return x*g.ScaleX + float32(g.PadX), y*g.ScaleY + float32(g.PadY)
}

// Inverse maps a point from model-input space back into original-image space.
func (g Geometry) Inverse(x, y float32) (float32, float32) {
	return (x - float32(g.PadX)) / g.ScaleX, (y - float32(g.PadY)) / g.ScaleY
}

// ForwardRect maps both corners of r into model-input space.
func (g Geometry) ForwardRect(r Rect) Rect {
	x1, y1 := g.Forward(r.X1, r.Y1)
	x2, y2 := g.Forward(r.X2, r.Y2)

	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// InverseRect maps both corners of r back into original-image space.
func (g Geometry) InverseRect(r Rect) Rect {
	x1, y1 := g.Inverse(r.X1, r.Y1)
	x2, y2 := g.Inverse(r.X2, r.Y2)

	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// FromNormalized maps a box expressed as fractions of the model input into original-image
// space.
//
// In plain-resize mode this is exactly a rescale by the source width and height. In
// letterbox mode the box is first scaled to model-input pixels and then inverse-mapped, so
// the padding is removed.
func (g Geometry) FromNormalized(r Rect) Rect {
	if g.Mode == ModePlainResize {
		w, h := float32(g.Source.Width), float32(g.Source.Height)
		return Rect{X1: r.X1 * w, Y1: r.Y1 * h, X2: r.X2 * w, Y2: r.Y2 * h}
	}

	tw, th := float32(g.Target.Width), float32(g.Target.Height)

	return g.InverseRect(Rect{X1: r.X1 * tw, Y1: r.Y1 * th, X2: r.X2 * tw, Y2: r.Y2 * th})
}
