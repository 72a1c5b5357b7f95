package model

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/verdict"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = postprocess.ErrInvalidConfig

// Normalization defines how pixel values are normalized before inference.
type Normalization string

const (
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne Normalization = "zero-to-one"
	// NormalizeStandardize applies (x - mean) / std per channel.
	NormalizeStandardize Normalization = "standardize"
)

// PreprocessConfig describes the input an engine adapter must build for the model.
type PreprocessConfig struct {
	Normalization Normalization `json:"normalization" yaml:"normalization"`
	Mean          [3]float32    `json:"mean" yaml:"mean"`
	Std           [3]float32    `json:"std" yaml:"std"`
	// BGR feeds channels in blue, green, red order.
	BGR bool `json:"bgr" yaml:"bgr"`
	// PadValue is the grey level used for letterbox padding.
	PadValue uint8 `json:"pad_value" yaml:"pad_value"`
}

// Config is the configuration bundle for one detection model.
type Config struct {
	InputWidth          int                   `json:"input_width" yaml:"input_width"`
	InputHeight         int                   `json:"input_height" yaml:"input_height"`
	ConfidenceThreshold float32               `json:"confidence_threshold" yaml:"confidence_threshold"`
	IoUThreshold        float32               `json:"iou_threshold" yaml:"iou_threshold"`
	ClassAgnostic       bool                  `json:"class_agnostic" yaml:"class_agnostic"`
	GeometryMode        images.GeometryMode   `json:"geometry_mode" yaml:"geometry_mode"`
	Strategy            postprocess.Strategy  `json:"decode_strategy" yaml:"decode_strategy"`
	NumClasses          int                   `json:"num_classes" yaml:"num_classes"`
	Gate                postprocess.GateMode  `json:"gate_mode" yaml:"gate_mode"`
	Layout              postprocess.Layout    `json:"layout" yaml:"layout"`
	Objectness          bool                  `json:"objectness" yaml:"objectness"`
	NormalizedCoords    bool                  `json:"normalized_coords" yaml:"normalized_coords"`
	RowFormat           postprocess.RowFormat `json:"row_format" yaml:"row_format"`
	PositiveClass       int                   `json:"positive_class" yaml:"positive_class"`
	ClampBoxes          bool                  `json:"clamp_boxes" yaml:"clamp_boxes"`
	// Verdict is a verdict expression such as "non-empty" or "exactly-one".
	Verdict    string           `json:"verdict" yaml:"verdict"`
	Preprocess PreprocessConfig `json:"preprocess" yaml:"preprocess"`
}

// Target returns the model input size.
func (c Config) Target() images.Dimensions {
	return images.Dimensions{Width: c.InputWidth, Height: c.InputHeight}
}

// DecodeConfig returns the decoder parameters.
func (c Config) DecodeConfig() postprocess.DecodeConfig {
	return postprocess.DecodeConfig{
		Strategy:            c.Strategy,
		ConfidenceThreshold: c.ConfidenceThreshold,
		NumClasses:          c.NumClasses,
		Gate:                c.Gate,
		Layout:              c.Layout,
		Objectness:          c.Objectness,
		NormalizedCoords:    c.NormalizedCoords,
		RowFormat:           c.RowFormat,
		PositiveClass:       c.PositiveClass,
	}
}

// NMSConfig returns the suppression parameters.
func (c Config) NMSConfig() postprocess.NMSConfig {
	return postprocess.NMSConfig{
		IoUThreshold:  c.IoUThreshold,
		ClassAgnostic: c.ClassAgnostic,
	}
}

// Validate checks ranges and enumerations.
//
// Returns:
//   - error: ErrInvalidConfig describing the first problem found, or nil.
func (c Config) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "input size %dx%d must be positive", c.InputWidth, c.InputHeight)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "confidence_threshold %v must be in [0, 1)", c.ConfidenceThreshold)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "iou_threshold %v must be in (0, 1]", c.IoUThreshold)
	}
	switch c.GeometryMode {
	case images.ModeLetterbox, images.ModePlainResize:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown geometry_mode: %q", c.GeometryMode)
	}
	switch c.Preprocess.Normalization {
	case "", NormalizeZeroToOne, NormalizeStandardize:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown normalization: %q", c.Preprocess.Normalization)
	}
	if c.Preprocess.Normalization == NormalizeStandardize {
		for _, s := range c.Preprocess.Std {
			if s == 0 {
				return errors.Wrap(ErrInvalidConfig, "standardize needs a non-zero std per channel")
			}
		}
	}

	if _, err := postprocess.NewDecoder(c.DecodeConfig()); err != nil {
		return err
	}
	if c.Verdict != "" {
		if _, err := verdict.Parse(c.Verdict); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "verdict: %v", err)
		}
	}

	return nil
}

// ParseConfig decodes YAML over base and validates the result. Keys absent from data keep
// the value from base; unknown keys are rejected.
func ParseConfig(data []byte, base Config) (Config, error) {
	cfg := base

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "parse yaml: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadConfig reads a YAML configuration file over base.
//
// Example:
// ```go
//
//	cfg, err := model.LoadConfig("detector.yaml", yolov5.DefaultConfig())
//
// ```
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	cfg, err := ParseConfig(data, base)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}

	return cfg, nil
}
