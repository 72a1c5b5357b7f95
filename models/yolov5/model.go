// Package yolov5 - YOLOv5 model presets.
package yolov5

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// YOLOv5 is the instance of the YOLOv5 model.
type YOLOv5 struct {
	options model.BaseModel
}

// Options returns the options for the YOLOv5 model.
func (m *YOLOv5) Options() model.BaseModel {
	return m.options
}

// DefaultConfig returns the post-processing configuration of the stock 640x640 export:
// a row-major [1, N, 85] grid output with objectness and both confidence gates. Suppression
// ignores labels and the verdict asks for a detection scoring above 0.5.
func DefaultConfig() model.Config {
	return model.Config{
		InputWidth:          640,
		InputHeight:         640,
		ConfidenceThreshold: 0.25,
		IoUThreshold:        0.45,
		GeometryMode:        images.ModeLetterbox,
		Strategy:            postprocess.StrategySingleStageGrid,
		NumClasses:          80,
		Gate:                postprocess.GateTwoStage,
		Layout:              postprocess.LayoutRowMajor,
		Objectness:          true,
		ClassAgnostic:       true,
		Verdict:             "top-score>0.5",
		Preprocess: model.PreprocessConfig{
			Normalization: model.NormalizeZeroToOne,
			PadValue:      114,
		},
	}
}

// MNNConfig returns the configuration of the MNN export, which emits decoded
// class, score, cx, cy, w, h rows normalised to the model input. Boxes are clamped to the
// image and the verdict asks for a single detection.
func MNNConfig() model.Config {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.7
	cfg.Strategy = postprocess.StrategyDecodedRows
	cfg.RowFormat = postprocess.RowFormatClassScoreCXCYWH
	cfg.Gate = postprocess.GateSingle
	cfg.ClassAgnostic = true
	cfg.ClampBoxes = true
	cfg.Verdict = "exactly-one"

	return cfg
}

// NewModel creates a new YOLOv5 model.
//
// Arguments:
//   - args: The arguments for creating a new model. Empty inputs and outputs default to
//     "images" and "pred".
//
// Returns:
//   - The model.
//   - error: model.ErrInvalidConfig if an overriding configuration is invalid.
func NewModel(args model.NewModelArgs) (*YOLOv5, error) {
	return newModel(model.ModelNameYOLOv5, DefaultConfig(), args)
}

// NewMNNModel creates a YOLOv5 model configured for the MNN export.
func NewMNNModel(args model.NewModelArgs) (*YOLOv5, error) {
	return newModel(model.ModelNameMNNYOLOv5, MNNConfig(), args)
}

func newModel(name model.Name, cfg model.Config, args model.NewModelArgs) (*YOLOv5, error) {
	options, err := model.Apply(model.BaseModel{
		Name:    name,
		Family:  model.ModelFamilyYOLO,
		Inputs:  []string{"images"},
		Outputs: []string{"pred"},
		Config:  cfg,
		Classes: model.YOLOClasses,
	}, args)
	if err != nil {
		return nil, err
	}

	return &YOLOv5{options: options}, nil
}
