package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// InterpolationFunction is the resampling kernel used when scaling image content.
type InterpolationFunction = resize.InterpolationFunction

const (
	// Bilinear interpolation; the default for model input.
	Bilinear = resize.Bilinear
	// Lanczos3 interpolation; slower, sharper.
	Lanczos3 = resize.Lanczos3
	// NearestNeighbor interpolation; used when exact pixel values matter in tests.
	NearestNeighbor = resize.NearestNeighbor
)

// DefaultFill is the grey used by YOLO exports for letterbox padding.
var DefaultFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox renders img into a Target-sized canvas according to g.
//
// The image content is scaled to g.Resized and drawn at (g.PadX, g.PadY); the remainder
// of the canvas is filled with fill. In plain-resize mode the content covers the whole
// canvas.
//
// Arguments:
//   - img: The source image. Its bounds should match g.Source.
//   - g: The geometry computed for img.
//   - fill: The padding colour. nil uses DefaultFill.
//
// Returns:
//   - *image.RGBA: The model-input sized image.
func Letterbox(img image.Image, g Geometry, fill color.Color) *image.RGBA {
	return LetterboxWith(img, g, fill, Bilinear)
}

// LetterboxWith is Letterbox with an explicit interpolation kernel.
func LetterboxWith(img image.Image, g Geometry, fill color.Color, interp InterpolationFunction) *image.RGBA {
	if fill == nil {
		fill = DefaultFill
	}

	dst := image.NewRGBA(image.Rect(0, 0, g.Target.Width, g.Target.Height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	resized := resize.Resize(uint(g.Resized.Width), uint(g.Resized.Height), img, interp)
	content := image.Rect(g.PadX, g.PadY, g.PadX+g.Resized.Width, g.PadY+g.Resized.Height)
	draw.Draw(dst, content, resized, resized.Bounds().Min, draw.Src)

	return dst
}
