// Package rfdetr - RF-DETR model presets.
package rfdetr

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// RFDETR is the instance of the RF-DETR model.
type RFDETR struct {
	options model.BaseModel
}

// Options returns the options for the RF-DETR model.
func (m *RFDETR) Options() model.BaseModel {
	return m.options
}

// DefaultConfig returns the configuration of an RF-DETR export with decoding baked in:
// rows of x1, y1, x2, y2, score, class in model-input pixels.
func DefaultConfig() model.Config {
	return model.Config{
		InputWidth:          640,
		InputHeight:         640,
		ConfidenceThreshold: 0.5,
		IoUThreshold:        0.7,
		GeometryMode:        images.ModeLetterbox,
		Strategy:            postprocess.StrategyDecodedRows,
		RowFormat:           postprocess.RowFormatXYXYScoreClass,
		Verdict:             "non-empty",
		Preprocess: model.PreprocessConfig{
			Normalization: model.NormalizeStandardize,
			Mean:          [3]float32{123.675, 116.28, 103.53},
			Std:           [3]float32{58.395, 57.12, 57.375},
		},
	}
}

// NewModel creates a new RF-DETR model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*RFDETR, error) {
	options, err := model.Apply(model.BaseModel{
		Name:    model.ModelNameRFDETR,
		Family:  model.ModelFamilyCOCO,
		Inputs:  []string{"input"},
		Outputs: []string{"output"},
		Config:  DefaultConfig(),
		Classes: model.COCOClasses,
	}, args)
	if err != nil {
		return nil, err
	}

	return &RFDETR{options: options}, nil
}
