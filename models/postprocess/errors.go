package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

var (
	// ErrInvalidImage is returned for non-positive image or model-input dimensions.
	ErrInvalidImage = images.ErrInvalidImage
	// ErrInvalidTensor is returned when an output's shape or data does not match the
	// decode strategy.
	ErrInvalidTensor = errors.New("invalid tensor")
	// ErrInvalidConfig is returned when decode or NMS parameters are out of range.
	ErrInvalidConfig = errors.New("invalid config")
)
