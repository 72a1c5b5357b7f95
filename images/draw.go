package images

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Annotation is a labelled box in image pixel coordinates.
type Annotation struct {
	Box   Rect
	Label string
	Color color.Color
}

// DefaultAnnotationColor is used when an Annotation has no color.
var DefaultAnnotationColor = color.RGBA{R: 255, G: 56, B: 56, A: 255}

// Annotate returns a copy of img with each box outlined and its label drawn above it.
// Boxes are clamped to the image.
//
// Arguments:
//   - img: The source image; it is not modified.
//   - annotations: The boxes to draw.
//   - thickness: Outline width in pixels; values below 1 draw 1 pixel.
//
// Returns:
//   - *image.RGBA: The annotated copy.
func Annotate(img image.Image, annotations []Annotation, thickness int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	if thickness < 1 {
		thickness = 1
	}
	dims := DimensionsOf(img)
	face := basicfont.Face7x13

	for _, a := range annotations {
		c := a.Color
		if c == nil {
			c = DefaultAnnotationColor
		}
		src := image.NewUniform(c)
		r := a.Box.Clamp(dims).ToRectangle()
		if r.Empty() {
			continue
		}

		outline(dst, r, src, thickness)

		if a.Label == "" {
			continue
		}

		// Label background sits on top of the box, or inside it at the top edge.
		width := font.MeasureString(face, a.Label).Ceil() + 4
		height := face.Metrics().Height.Ceil() + 2
		top := r.Min.Y - height
		if top < 0 {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+width, top+height).Intersect(dst.Bounds())
		draw.Draw(dst, bg, src, image.Point{}, draw.Src)

		d := &font.Drawer{
			Dst:  dst,
			Src:  image.White,
			Face: face,
			Dot:  fixed.P(r.Min.X+2, top+face.Metrics().Ascent.Ceil()+1),
		}
		d.DrawString(a.Label)
	}

	return dst
}

func outline(dst draw.Image, r image.Rectangle, src image.Image, t int) {
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
