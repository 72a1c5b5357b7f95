package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

// GridDecoder decodes single-stage YOLO outputs.
//
// Each proposal holds cx, cy, w, h, an optional box confidence and C class scores. With
// LayoutRowMajor the output is [N, fields]; with LayoutChannelMajor it is [fields, N]. A
// leading batch dimension of size 1 is accepted in both cases.
type GridDecoder struct {
	ConfidenceThreshold float32
	NumClasses          int
	Gate                GateMode
	Layout              Layout
	// Objectness is true when each proposal carries a box confidence at index 4.
	Objectness bool
	// NormalizedCoords is true when cx, cy, w, h are fractions of the model input.
	NormalizedCoords bool
}

// Fields returns the number of values per proposal.
func (d *GridDecoder) Fields() int {
	if d.Objectness {
		return 5 + d.NumClasses
	}

	return 4 + d.NumClasses
}

// Decode implements Decoder.
//
// Per proposal:
//  1. With Objectness and GateTwoStage, reject unless box_conf > threshold.
//  2. Pick the best class; the first maximum wins ties.
//  3. Reject unless box_conf * class_score > threshold. NaN scores never pass.
//  4. Convert centre/size to corners and map back through g.
func (d *GridDecoder) Decode(g images.Geometry, outputs ...View) ([]Result, error) {
	if err := expectOutputs(outputs, 1, StrategySingleStageGrid); err != nil {
		return nil, err
	}
	out := outputs[0]

	rows, cols, err := out.Matrix()
	if err != nil {
		return nil, err
	}

	fields := d.Fields()
	proposals, width := rows, cols
	if d.Layout == LayoutChannelMajor {
		proposals, width = cols, rows
	}
	if width != fields {
		return nil, errors.Wrapf(ErrInvalidTensor,
			"expected %d values per proposal for %d classes, got shape %v", fields, d.NumClasses, out.Shape)
	}

	at := func(i, f int) float32 {
		if d.Layout == LayoutChannelMajor {
			return out.Data[f*proposals+i]
		}
		return out.Data[i*fields+f]
	}

	classOffset := 4
	if d.Objectness {
		classOffset = 5
	}

	results := make([]Result, 0)
	for i := 0; i < proposals; i++ {
		boxConf := float32(1)
		if d.Objectness {
			boxConf = at(i, 4)
			if d.Gate != GateSingle && !(boxConf > d.ConfidenceThreshold) {
				continue
			}
		}

		classID := 0
		classScore := at(i, classOffset)
		for c := 1; c < d.NumClasses; c++ {
			if s := at(i, classOffset+c); s > classScore {
				classScore = s
				classID = c
			}
		}

		confidence := boxConf * classScore
		if !(confidence > d.ConfidenceThreshold) {
			continue
		}

		box := images.FromCenter(at(i, 0), at(i, 1), at(i, 2), at(i, 3))
		if d.NormalizedCoords {
			box = g.FromNormalized(box)
		} else {
			box = g.InverseRect(box)
		}

		results = append(results, Result{Box: box, Score: confidence, Class: classID})
	}

	return results, nil
}
