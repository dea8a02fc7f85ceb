// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/video-detect/images"
)

// Candidate is one decoded anchor that passed the confidence filter, before suppression.
type Candidate struct {
	// The normalised bounding box of the anchor.
	Box images.Rect `json:"box"`
	// The highest class confidence of the anchor.
	Confidence float32 `json:"confidence"`
	// The class holding that confidence (lowest index on ties).
	ClassID int `json:"class_id"`
	// The index of the anchor in the raw network output.
	Anchor int `json:"anchor"`
}

// ClassGroups holds the candidates of one image, indexed by class id.
type ClassGroups [][]Candidate

// Len returns the number of candidates across all classes.
func (g ClassGroups) Len() int {
	n := 0
	for _, c := range g {
		n += len(c)
	}
	return n
}

// Detection represents a single detection result that survived filtering and NMS.
type Detection struct {
	// The normalised bounding box of the detection.
	Box images.Rect `json:"box"`
	// The confidence score of the detection.
	Confidence float32 `json:"confidence"`
	// ClassConfidence repeats Confidence. Consumers that read a separate class score and
	// detection score expect both fields.
	ClassConfidence float32 `json:"class_confidence"`
	// The predicted class index of the detection.
	ClassID int `json:"class_id"`
}

// Values returns the detection as [x1, y1, x2, y2, confidence, class confidence, class id].
func (d Detection) Values() [7]float32 {
	return [7]float32{
		d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2,
		d.Confidence, d.ClassConfidence, float32(d.ClassID),
	}
}

// String formats the detection for logs.
func (d Detection) String() string {
	return fmt.Sprintf("class %d (confidence %f): %s", d.ClassID, d.Confidence, d.Box)
}

// DetectionList holds the detections of one image in class order, then NMS order.
type DetectionList []Detection
