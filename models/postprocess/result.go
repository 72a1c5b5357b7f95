// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
)

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}

// String returns a string representation of the result.
func (r Result) String() string {
	return fmt.Sprintf("class %d (score %.4f): %s", r.Class, r.Score, r.Box)
}

// DetectionSet is the ordered output of NMS: highest score first.
type DetectionSet []Result

// Top returns the highest-scoring detection.
func (s DetectionSet) Top() (Result, bool) {
	if len(s) == 0 {
		return Result{}, false
	}

	return s[0], true
}

// Filter returns the detections for which keep returns true, preserving order.
func (s DetectionSet) Filter(keep func(Result) bool) DetectionSet {
	out := make(DetectionSet, 0, len(s))
	for _, r := range s {
		if keep(r) {
			out = append(out, r)
		}
	}

	return out
}

// Clamp returns a copy of the set with every box limited to the image bounds.
func (s DetectionSet) Clamp(d images.Dimensions) DetectionSet {
	out := make(DetectionSet, len(s))
	for i, r := range s {
		r.Box = r.Box.Clamp(d)
		out[i] = r
	}

	return out
}
