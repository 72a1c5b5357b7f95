// Package images - Geometry primitives and image utilities for detection post-processing.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned bounding box in pixel coordinates.
//
// (X1, Y1) is the top-left corner and (X2, Y2) the bottom-right corner. A well-formed
// box has X1 <= X2 and Y1 <= Y2; inverted boxes are treated as having zero extent.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, or zero for an inverted box.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the box, or zero for an inverted box.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns Width * Height.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Center returns the midpoint of the box.
func (r Rect) Center() (float32, float32) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// FromCenter builds a box from a centre point and a width/height pair.
func FromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Clamp limits every coordinate of the box to [0, d.Width] x [0, d.Height].
//
// Arguments:
//   - d: The image dimensions to clamp against.
//
// Returns:
//   - Rect: The clamped box.
func (r Rect) Clamp(d Dimensions) Rect {
	w, h := float32(d.Width), float32(d.Height)

	return Rect{
		X1: clamp(r.X1, 0, w),
		Y1: clamp(r.Y1, 0, h),
		X2: clamp(r.X2, 0, w),
		Y2: clamp(r.Y2, 0, h),
	}
}

// ToRectangle converts the box into an integer image.Rectangle for drawing and cropping.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(
		int(math32.Floor(r.X1)),
		int(math32.Floor(r.Y1)),
		int(math32.Ceil(r.X2)),
		int(math32.Ceil(r.Y2)),
	)
}

// String returns a string representation of the box.
func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the intersection-over-union of two boxes.
//
// The intersection is the overlap of both boxes with its width and height clamped at
// zero, so disjoint or touching boxes score 0. The union follows inclusion-exclusion:
//
//	IoU = inter / (area(r) + area(o) - inter)
//
// A union of zero or less (degenerate boxes) yields 0 rather than NaN or Inf, so the
// result is always within [0, 1].
//
// Arguments:
//   - r: The first box.
//   - o: The second box.
//
// Returns:
//   - float32: The IoU score in [0, 1].
//
// Example:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	interW := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	interH := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}

	inter := interW * interH
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}

	return math32.Min(1, inter/union)
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}
