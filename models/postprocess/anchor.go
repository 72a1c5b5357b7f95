package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

// AnchorDecoder decodes two-tensor anchor outputs such as UltraFace.
//
// The first output holds scores [N, 2] (background, positive) and the second holds boxes
// [N, 4] as x1, y1, x2, y2 fractions of the model input. Rows whose positive score exceeds
// the threshold become detections labelled PositiveClass.
type AnchorDecoder struct {
	ConfidenceThreshold float32
	PositiveClass       int
}

// Decode implements Decoder. outputs must be (scores, boxes).
func (d *AnchorDecoder) Decode(g images.Geometry, outputs ...View) ([]Result, error) {
	if err := expectOutputs(outputs, 2, StrategyTwoTensorAnchor); err != nil {
		return nil, err
	}
	scores, boxes := outputs[0], outputs[1]

	scoreRows, scoreCols, err := scores.Matrix()
	if err != nil {
		return nil, errors.Wrap(err, "scores")
	}
	if scoreCols != 2 {
		return nil, errors.Wrapf(ErrInvalidTensor, "scores must be [N, 2], got %v", scores.Shape)
	}

	boxRows, boxCols, err := boxes.Matrix()
	if err != nil {
		return nil, errors.Wrap(err, "boxes")
	}
	if boxCols != 4 {
		return nil, errors.Wrapf(ErrInvalidTensor, "boxes must be [N, 4], got %v", boxes.Shape)
	}
	if scoreRows != boxRows {
		return nil, errors.Wrapf(ErrInvalidTensor, "scores have %d rows, boxes have %d", scoreRows, boxRows)
	}

	results := make([]Result, 0)
	for i := 0; i < scoreRows; i++ {
		score := scores.Row(i, 2)[1]
		if !(score > d.ConfidenceThreshold) {
			continue
		}

		b := boxes.Row(i, 4)
		results = append(results, Result{
			Box:   g.FromNormalized(images.Rect{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]}),
			Score: score,
			Class: d.PositiveClass,
		})
	}

	return results, nil
}
