// Package yolov4 - postprocess YOLOv4 model outputs.
package yolov4

import (
	"github.com/nvr-ai/video-detect/models/postprocess"
)

// PostProcess postprocesses the output of the YOLOv4 model.
//
// The network emits corner boxes already normalised to [0, 1] together with per-class
// confidences, so no coordinate transform is applied here.
//
// Arguments:
//   - out: The boxes and confs tensors of one batch.
//
// Returns:
//   - One detection list per batch image.
//   - An error if the tensors are malformed.
func (m *YOLOv4) PostProcess(out postprocess.RawOutput) ([]postprocess.DetectionList, error) {
	return m.postProcessor.Process(out)
}
