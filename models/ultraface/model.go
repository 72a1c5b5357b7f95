// Package ultraface - UltraFace (RFB-320) face detector presets.
package ultraface

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// UltraFace is the instance of the UltraFace model.
type UltraFace struct {
	options model.BaseModel
}

// Options returns the options for the UltraFace model.
func (m *UltraFace) Options() model.BaseModel {
	return m.options
}

// DefaultConfig returns the configuration of the 320x240 export. The image is stretched
// to the input without padding and the model emits scores [1, N, 2] and boxes [1, N, 4].
func DefaultConfig() model.Config {
	return model.Config{
		InputWidth:          320,
		InputHeight:         240,
		ConfidenceThreshold: 0.5,
		IoUThreshold:        0.3,
		GeometryMode:        images.ModePlainResize,
		Strategy:            postprocess.StrategyTwoTensorAnchor,
		PositiveClass:       1,
		Verdict:             "non-empty",
		Preprocess: model.PreprocessConfig{
			Normalization: model.NormalizeStandardize,
			Mean:          [3]float32{127, 127, 127},
			Std:           [3]float32{128, 128, 128},
		},
	}
}

// NewModel creates a new UltraFace model.
//
// Arguments:
//   - args: The arguments for creating a new model. Outputs must be ordered scores, boxes.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*UltraFace, error) {
	options, err := model.Apply(model.BaseModel{
		Name:    model.ModelNameUltraFace,
		Family:  model.ModelFamilyFace,
		Inputs:  []string{"input"},
		Outputs: []string{"scores", "boxes"},
		Config:  DefaultConfig(),
		Classes: model.FaceClasses,
	}, args)
	if err != nil {
		return nil, err
	}

	return &UltraFace{options: options}, nil
}
