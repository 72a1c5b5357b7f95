// Package model - Definitions shared by every detection model preset.
package model

import (
	"github.com/pkg/errors"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family (80 classes plus background at index 0).
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family (80 COCO classes, no background).
	ModelFamilyYOLO Family = "yolo"
	// ModelFamilyFace is the single-class face detector family.
	ModelFamilyFace Family = "face"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv5 is the name of the YOLOv5 model.
	ModelNameYOLOv5 Name = "yolov5"
	// ModelNameYOLOv8 is the name of the YOLOv8 model.
	ModelNameYOLOv8 Name = "yolov8"
	// ModelNameMNNYOLOv5 is the name of the MNN YOLOv5 export with decoding baked in.
	ModelNameMNNYOLOv5 Name = "mnn-yolov5"
	// ModelNameUltraFace is the name of the UltraFace (RFB-320) face detector.
	ModelNameUltraFace Name = "ultraface"
	// ModelNameRFDETR is the name of the RF-DETR model.
	ModelNameRFDETR Name = "rfdetr"
	// ModelNameDFINE is the name of the D-FINE model.
	ModelNameDFINE Name = "dfine"
)

// BaseModel is the base model for all models.
type BaseModel struct {
	Name    Name
	Family  Family
	Path    string
	Inputs  []string
	Outputs []string
	Config  Config
	Classes *OutputClassSet
}

// Model is a model with a family, a path for loading and a post-processing configuration.
type Model interface {
	Options() BaseModel
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name    Name     `json:"name" yaml:"name"`
	Path    string   `json:"path" yaml:"path"`
	Inputs  []string `json:"inputs" yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`
	// Config replaces the preset configuration when set.
	Config *Config `json:"config" yaml:"config"`
}

// Apply overlays args onto a preset and validates the result.
//
// Arguments:
//   - base: The preset for the model.
//   - args: Caller overrides; empty fields keep the preset value.
//
// Returns:
//   - BaseModel: The merged model options.
//   - error: ErrInvalidConfig if the resulting configuration does not validate.
func Apply(base BaseModel, args NewModelArgs) (BaseModel, error) {
	if args.Path != "" {
		base.Path = args.Path
	}
	if len(args.Inputs) > 0 {
		base.Inputs = args.Inputs
	}
	if len(args.Outputs) > 0 {
		base.Outputs = args.Outputs
	}
	if args.Config != nil {
		base.Config = *args.Config
	}

	if err := base.Config.Validate(); err != nil {
		return BaseModel{}, errors.Wrapf(err, "model %s", base.Name)
	}

	return base, nil
}
