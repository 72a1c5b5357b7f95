package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

const decodedRowWidth = 6

// RowDecoder reads outputs that already contain one decoded detection per row, as emitted
// by RF-DETR, D-FINE and exports with NMS baked in.
type RowDecoder struct {
	ConfidenceThreshold float32
	Format              RowFormat
}

// Decode implements Decoder.
func (d *RowDecoder) Decode(g images.Geometry, outputs ...View) ([]Result, error) {
	if err := expectOutputs(outputs, 1, StrategyDecodedRows); err != nil {
		return nil, err
	}
	out := outputs[0]

	rows, cols, err := out.Matrix()
	if err != nil {
		return nil, err
	}
	if cols != decodedRowWidth {
		return nil, errors.Wrapf(ErrInvalidTensor, "decoded rows must have %d values, got shape %v", decodedRowWidth, out.Shape)
	}

	results := make([]Result, 0)
	for i := 0; i < rows; i++ {
		row := out.Row(i, decodedRowWidth)

		var r Result
		switch d.Format {
		case RowFormatClassScoreCXCYWH:
			r = Result{
				Box:   g.FromNormalized(images.FromCenter(row[2], row[3], row[4], row[5])),
				Score: row[1],
				Class: int(row[0]),
			}
		default:
			r = Result{
				Box:   g.InverseRect(images.Rect{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}),
				Score: row[4],
				Class: int(row[5]),
			}
		}

		if !(r.Score > d.ConfidenceThreshold) {
			continue
		}
		results = append(results, r)
	}

	return results, nil
}
