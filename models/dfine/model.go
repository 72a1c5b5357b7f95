// Package dfine - D-FINE model presets.
package dfine

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// DFINE is the instance of the D-FINE model.
type DFINE struct {
	options model.BaseModel
}

// Options returns the options for the D-FINE model.
func (m *DFINE) Options() model.BaseModel {
	return m.options
}

// DefaultConfig returns the configuration of a D-FINE export. It shares the decoded-row
// layout of RF-DETR but pads with black rather than grey.
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
			PadValue:      0,
		},
	}
}

// NewModel creates a new D-FINE model.
func NewModel(args model.NewModelArgs) (*DFINE, error) {
	options, err := model.Apply(model.BaseModel{
		Name:    model.ModelNameDFINE,
		Family:  model.ModelFamilyCOCO,
		Inputs:  []string{"images"},
		Outputs: []string{"output"},
		Config:  DefaultConfig(),
		Classes: model.COCOClasses,
	}, args)
	if err != nil {
		return nil, err
	}

	return &DFINE{options: options}, nil
}
