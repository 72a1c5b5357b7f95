// Package yolov8 - YOLOv8 model presets.
package yolov8

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// YOLOv8 is the instance of the YOLOv8 model.
type YOLOv8 struct {
	options model.BaseModel
}

// Options returns the options for the YOLOv8 model.
func (m *YOLOv8) Options() model.BaseModel {
	return m.options
}

// DefaultConfig returns the configuration of the stock export. The output is channel-major
// [1, 84, 8400] and carries no objectness column, so the class score is the confidence.
// Suppression is per label and the verdict asks for a detection scoring above 0.5.
func DefaultConfig() model.Config {
	return model.Config{
		InputWidth:          640,
		InputHeight:         640,
		ConfidenceThreshold: 0.25,
		IoUThreshold:        0.45,
		GeometryMode:        images.ModeLetterbox,
		Strategy:            postprocess.StrategySingleStageGrid,
		NumClasses:          80,
		Gate:                postprocess.GateSingle,
		Layout:              postprocess.LayoutChannelMajor,
		Objectness:          false,
		Verdict:             "top-score>0.5",
		Preprocess: model.PreprocessConfig{
			Normalization: model.NormalizeZeroToOne,
			PadValue:      114,
		},
	}
}

// NewModel creates a new YOLOv8 model.
func NewModel(args model.NewModelArgs) (*YOLOv8, error) {
	options, err := model.Apply(model.BaseModel{
		Name:    model.ModelNameYOLOv8,
		Family:  model.ModelFamilyYOLO,
		Inputs:  []string{"images"},
		Outputs: []string{"output0"},
		Config:  DefaultConfig(),
		Classes: model.YOLOClasses,
	}, args)
	if err != nil {
		return nil, err
	}

	return &YOLOv8{options: options}, nil
}
