package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

// Strategy selects how raw engine outputs are turned into proposals.
type Strategy string

const (
	// StrategySingleStageGrid decodes one [N, 5+C] YOLO-style output.
	StrategySingleStageGrid Strategy = "single-stage-grid"
	// StrategyTwoTensorAnchor decodes a scores [N, 2] / boxes [N, 4] pair (UltraFace).
	StrategyTwoTensorAnchor Strategy = "two-tensor-anchor"
	// StrategyDecodedRows reads engines that already emit one detection per 6-value row.
	StrategyDecodedRows Strategy = "decoded-rows"
)

// GateMode selects which confidence gates the grid decoder applies.
type GateMode string

const (
	// GateTwoStage rejects on box confidence first, then on box * class confidence.
	GateTwoStage GateMode = "two-stage"
	// GateSingle applies only the box * class confidence gate.
	GateSingle GateMode = "single"
)

// Layout is the memory order of a grid output.
type Layout string

const (
	// LayoutRowMajor is [N, fields]: one proposal per row (YOLOv5).
	LayoutRowMajor Layout = "row-major"
	// LayoutChannelMajor is [fields, N]: one field per row (YOLOv8 and later exports).
	LayoutChannelMajor Layout = "channel-major"
)

// RowFormat is the field order of a decoded-rows output.
type RowFormat string

const (
	// RowFormatXYXYScoreClass is x1, y1, x2, y2, score, class in model-input pixels.
	RowFormatXYXYScoreClass RowFormat = "xyxy-score-class"
	// RowFormatClassScoreCXCYWH is class, score, cx, cy, w, h normalised to the model input.
	RowFormatClassScoreCXCYWH RowFormat = "class-score-cxcywh"
)

// DecodeConfig carries everything a Decoder needs besides the outputs and the geometry.
type DecodeConfig struct {
	Strategy            Strategy
	ConfidenceThreshold float32
	NumClasses          int
	Gate                GateMode
	Layout              Layout
	Objectness          bool
	NormalizedCoords    bool
	RowFormat           RowFormat
	PositiveClass       int
}

// Decoder turns engine outputs into proposals in original-image space.
//
// Implementations are pure functions of their inputs: no I/O and no retained state, so a
// single Decoder may be shared between goroutines. Proposals are returned in output row
// order.
type Decoder interface {
	Decode(g images.Geometry, outputs ...View) ([]Result, error)
}

// NewDecoder returns the Decoder for cfg.Strategy.
//
// Arguments:
//   - cfg: The decode parameters.
//
// Returns:
//   - Decoder: A GridDecoder, AnchorDecoder or RowDecoder.
//   - error: ErrInvalidConfig for unknown strategies or inconsistent parameters.
func NewDecoder(cfg DecodeConfig) (Decoder, error) {
	switch cfg.Strategy {
	case StrategySingleStageGrid:
		if cfg.NumClasses <= 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "grid decoding needs num_classes > 0, got %d", cfg.NumClasses)
		}
		gate := cfg.Gate
		if gate == "" {
			gate = GateTwoStage
		}
		if gate != GateTwoStage && gate != GateSingle {
			return nil, errors.Wrapf(ErrInvalidConfig, "unknown gate mode: %q", cfg.Gate)
		}
		layout := cfg.Layout
		if layout == "" {
			layout = LayoutRowMajor
		}
		if layout != LayoutRowMajor && layout != LayoutChannelMajor {
			return nil, errors.Wrapf(ErrInvalidConfig, "unknown layout: %q", cfg.Layout)
		}

		return &GridDecoder{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			NumClasses:          cfg.NumClasses,
			Gate:                gate,
			Layout:              layout,
			Objectness:          cfg.Objectness,
			NormalizedCoords:    cfg.NormalizedCoords,
		}, nil
	case StrategyTwoTensorAnchor:
		return &AnchorDecoder{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			PositiveClass:       cfg.PositiveClass,
		}, nil
	case StrategyDecodedRows:
		format := cfg.RowFormat
		if format == "" {
			format = RowFormatXYXYScoreClass
		}
		if format != RowFormatXYXYScoreClass && format != RowFormatClassScoreCXCYWH {
			return nil, errors.Wrapf(ErrInvalidConfig, "unknown row format: %q", cfg.RowFormat)
		}

		return &RowDecoder{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			Format:              format,
		}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown decode strategy: %q", cfg.Strategy)
	}
}

func expectOutputs(outputs []View, n int, strategy Strategy) error {
	if len(outputs) != n {
		return errors.Wrapf(ErrInvalidTensor, "%s decoding expects %d output(s), got %d", strategy, n, len(outputs))
	}

	return nil
}
