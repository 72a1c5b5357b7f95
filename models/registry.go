// Package models - registry for models.
package models

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/dfine"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/rfdetr"
	"github.com/nvr-ai/go-detect/models/ultraface"
	"github.com/nvr-ai/go-detect/models/yolov5"
	"github.com/nvr-ai/go-detect/models/yolov8"
)

// ErrUnsupportedModel is returned for model names without a preset.
var ErrUnsupportedModel = errors.New("unsupported model")

var constructors = map[model.Name]func(model.NewModelArgs) (model.Model, error){
	model.ModelNameYOLOv5: func(args model.NewModelArgs) (model.Model, error) {
		return yolov5.NewModel(args)
	},
	model.ModelNameMNNYOLOv5: func(args model.NewModelArgs) (model.Model, error) {
		return yolov5.NewMNNModel(args)
	},
	model.ModelNameYOLOv8: func(args model.NewModelArgs) (model.Model, error) {
		return yolov8.NewModel(args)
	},
	model.ModelNameUltraFace: func(args model.NewModelArgs) (model.Model, error) {
		return ultraface.NewModel(args)
	},
	model.ModelNameRFDETR: func(args model.NewModelArgs) (model.Model, error) {
		return rfdetr.NewModel(args)
	},
	model.ModelNameDFINE: func(args model.NewModelArgs) (model.Model, error) {
		return dfine.NewModel(args)
	},
}

// NewModel creates a new detection model instance based on the specified model name.
//
// This factory is the entry point for model creation: it routes to the preset package for
// args.Name, which supplies default input/output names and the post-processing
// configuration, then applies the caller's overrides.
//
// Arguments:
//   - args: The model name, file location and optional overrides.
//
// Returns:
//   - model.Model: A configured model instance.
//   - error: ErrUnsupportedModel for unknown names, model.ErrInvalidConfig for invalid
//     overrides.
//
// Example:
//
// ```go
//
//	m, err := models.NewModel(model.NewModelArgs{
//	    Name: model.ModelNameYOLOv5,
//	    Path: "/models/yolov5s.onnx",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(args model.NewModelArgs) (model.Model, error) {
	constructor, ok := constructors[args.Name]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedModel, "%q", args.Name)
	}

	return constructor(args)
}

// DefaultConfig returns the preset configuration for name.
func DefaultConfig(name model.Name) (model.Config, error) {
	m, err := NewModel(model.NewModelArgs{Name: name})
	if err != nil {
		return model.Config{}, err
	}

	return m.Options().Config, nil
}

// Names returns every registered model name in sorted order.
func Names() []model.Name {
	names := make([]model.Name, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}
