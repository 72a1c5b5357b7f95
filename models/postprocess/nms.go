// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap above which the lower-scored box is suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ClassAgnostic suppresses across labels when true; otherwise only within a label.
	ClassAgnostic bool `json:"class_agnostic" yaml:"class_agnostic"`
}

// ApplyNMS filters overlapping detections using greedy Non-Maximum Suppression.
//
// Candidates are visited in descending score order, ties keeping their original order.
// A candidate is kept unless its IoU with an already kept detection of the same label (any
// label when ClassAgnostic) exceeds IoUThreshold. The input slice is not modified.
//
// Arguments:
//   - candidates: Proposals in any order.
//   - config: NMS configuration.
//
// Returns:
//   - DetectionSet: The kept detections, highest score first. Empty input yields an
//     empty set.
//
// Example:
// ```go
//
//	kept := ApplyNMS(proposals, NMSConfig{IoUThreshold: 0.45})
//
// ```
func ApplyNMS(candidates []Result, config NMSConfig) DetectionSet {
	if len(candidates) == 0 {
		return DetectionSet{}
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Score > candidates[order[b]].Score
	})

	picked := make(DetectionSet, 0, len(candidates))
	for _, idx := range order {
		candidate := candidates[idx]
		if suppressed(candidate, picked, config) {
			continue
		}
		picked = append(picked, candidate)
	}

	return picked
}

func suppressed(candidate Result, picked DetectionSet, config NMSConfig) bool {
	for _, kept := range picked {
		if !config.ClassAgnostic && kept.Class != candidate.Class {
			continue
		}
		if images.CalculateIoU(candidate.Box, kept.Box) > config.IoUThreshold {
			return true
		}
	}

	return false
}
