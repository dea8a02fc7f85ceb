package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/video-detect/images"
)

// Decode turns raw network output into per-image, per-class candidate groups.
//
// For every anchor the class with the highest confidence is selected; ties go to the lowest
// class index. An anchor is kept only when that confidence is strictly greater than
// confThreshold, and an anchor with any NaN score is dropped. Kept anchors are grouped by
// class in anchor order.
//
// Arguments:
//   - out: The network output for one batch.
//   - confThreshold: The exclusive minimum confidence.
//
// Returns:
//   - []ClassGroups: One entry per batch image, each holding one (possibly empty) group per class.
//   - error: ErrShapeMismatch (wrapped) if the tensors are malformed.
func Decode(out RawOutput, confThreshold float32) ([]ClassGroups, error) {
	dims, err := out.Dims()
	if err != nil {
		return nil, err
	}
	boxes, err := float32s("boxes", out.Boxes)
	if err != nil {
		return nil, err
	}
	scores, err := float32s("scores", out.Scores)
	if err != nil {
		return nil, err
	}

	batch := make([]ClassGroups, dims.Batch)
	for b := range dims.Batch {
		groups := make(ClassGroups, dims.Classes)
		for a := range dims.Anchors {
			anchor := b*dims.Anchors + a
			row := scores[anchor*dims.Classes : (anchor+1)*dims.Classes]

			classID, confidence, ok := argmax(row)
			if !ok || !(confidence > confThreshold) {
				continue
			}

			coords := boxes[anchor*4 : anchor*4+4]
			groups[classID] = append(groups[classID], Candidate{
				Box: images.Rect{
					X1: coords[0],
					Y1: coords[1],
					X2: coords[2],
					Y2: coords[3],
				},
				Confidence: confidence,
				ClassID:    classID,
				Anchor:     a,
			})
		}
		batch[b] = groups
	}

	return batch, nil
}

// argmax returns the first index holding the maximum value. ok is false when the row is empty
// or holds a NaN.
func argmax(row []float32) (index int, value float32, ok bool) {
	if len(row) == 0 {
		return 0, 0, false
	}
	value = row[0]
	for i, v := range row {
		if math32.IsNaN(v) {
			return 0, 0, false
		}
		if v > value {
			index, value = i, v
		}
	}
	return index, value, true
}
