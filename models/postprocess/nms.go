package postprocess

import (
	"fmt"
	"sort"

	"github.com/nvr-ai/video-detect/images"
)

// NMS performs standard greedy Non-Maximum Suppression.
//
// Boxes are visited by descending score, ties broken by ascending index. Each visited box that
// has not been suppressed is kept and suppresses every remaining box whose IoU with it is
// strictly greater than iouThreshold.
//
// Arguments:
//   - boxes: The candidate boxes.
//   - scores: The score of each box; must have the same length as boxes.
//   - iouThreshold: IoU threshold above which overlapping boxes are suppressed.
//
// Returns:
//   - []int: Indices into boxes of the kept boxes, in the order they were kept. Empty (not nil)
//     for empty input.
func NMS(boxes []images.Rect, scores []float32, iouThreshold float32) []int {
	if len(boxes) != len(scores) {
		panic(fmt.Sprintf("postprocess: NMS got %d boxes and %d scores", len(boxes), len(scores)))
	}

	n := len(boxes)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa != sb {
			return sa > sb
		}
		return order[a] < order[b]
	})

	keep := make([]int, 0, n)
	suppressed := make([]bool, n)

	for i, anchor := range order {
		if suppressed[anchor] {
			continue
		}
		keep = append(keep, anchor)

		for _, j := range order[i+1:] {
			if suppressed[j] {
				continue
			}
			if images.CalculateIoU(boxes[anchor], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// ApplyNMS suppresses overlapping candidates of a single class.
//
// Arguments:
//   - candidates: The candidates of one class, in anchor order.
//   - iouThreshold: IoU threshold above which overlapping boxes are suppressed.
//
// Returns:
//   - DetectionList: The surviving detections in NMS order.
func ApplyNMS(candidates []Candidate, iouThreshold float32) DetectionList {
	if len(candidates) == 0 {
		return DetectionList{}
	}

	boxes := make([]images.Rect, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = c.Box
		scores[i] = c.Confidence
	}

	keep := NMS(boxes, scores, iouThreshold)
	detections := make(DetectionList, 0, len(keep))
	for _, k := range keep {
		c := candidates[k]
		detections = append(detections, Detection{
			Box:             c.Box,
			Confidence:      c.Confidence,
			ClassConfidence: c.Confidence,
			ClassID:         c.ClassID,
		})
	}

	return detections
}
