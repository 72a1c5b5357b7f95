package postprocess

import (
	"github.com/pkg/errors"
)

// View is a read-only window over one engine output: a shape and the row-major float32
// data behind it. Views never own engine memory; adapters copy into Data.
type View struct {
	Shape []int
	Data  []float32
}

// NewView builds a View and validates that the shape matches the data length.
//
// Arguments:
//   - data: The flattened, row-major tensor data.
//   - shape: The tensor dimensions.
//
// Returns:
//   - View: The validated view.
//   - error: ErrInvalidTensor if the shape is empty, has non-positive dimensions, or does
//     not cover exactly len(data) values.
func NewView(data []float32, shape ...int) (View, error) {
	v := View{Shape: shape, Data: data}
	if err := v.Validate(); err != nil {
		return View{}, err
	}

	return v, nil
}

// Size returns the product of the shape, or 0 for an empty shape.
func (v View) Size() int {
	if len(v.Shape) == 0 {
		return 0
	}

	n := 1
	for _, d := range v.Shape {
		n *= d
	}

	return n
}

// Validate checks that the shape is well formed and covers the data exactly.
func (v View) Validate() error {
	if len(v.Shape) == 0 {
		return errors.Wrap(ErrInvalidTensor, "empty shape")
	}
	for _, d := range v.Shape {
		if d <= 0 {
			return errors.Wrapf(ErrInvalidTensor, "shape %v has a non-positive dimension", v.Shape)
		}
	}
	if n := v.Size(); n != len(v.Data) {
		return errors.Wrapf(ErrInvalidTensor, "shape %v holds %d values, data has %d", v.Shape, n, len(v.Data))
	}

	return nil
}

// Matrix interprets the view as a 2-D [rows, cols] matrix after dropping leading
// dimensions of size 1, so [1, N, K] and [N, K] are equivalent.
func (v View) Matrix() (rows, cols int, err error) {
	if err := v.Validate(); err != nil {
		return 0, 0, err
	}

	shape := v.Shape
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return 0, 0, errors.Wrapf(ErrInvalidTensor, "expected a 2-D output after squeezing, got shape %v", v.Shape)
	}

	return shape[0], shape[1], nil
}

// Row returns row i of a matrix with cols columns. The caller guarantees bounds.
func (v View) Row(i, cols int) []float32 {
	return v.Data[i*cols : (i+1)*cols]
}
