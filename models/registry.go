// Package models - registry for models.
package models

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/video-detect/models/model"
	"github.com/nvr-ai/video-detect/models/yolov4"
)

// ErrUnsupportedModel is returned for a model name that has no constructor.
var ErrUnsupportedModel = errors.New("unsupported model")

// NewModel creates a new detection model instance based on the specified model type.
//
// Unset node names and input size fall back to the defaults of the model's published export.
//
// Arguments:
//   - args: Configuration parameters specifying the model type and location.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: ErrUnsupportedModel (wrapped) for an unknown name, or a validation error.
//
// Example:
//
//	m, err := NewModel(model.NewModelArgs{
//	    Name:        model.ModelNameYOLOv4,
//	    Path:        "/models/yolov4_1_3_608_608_static.onnx",
//	    PostProcess: postprocess.DefaultConfig(),
//	})
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameYOLOv4:
		if len(args.Inputs) == 0 {
			args.Inputs = yolov4.DefaultInputs
		}
		if len(args.Outputs) == 0 {
			args.Outputs = yolov4.DefaultOutputs
		}
		if args.InputSize.X == 0 && args.InputSize.Y == 0 {
			args.InputSize.X, args.InputSize.Y = yolov4.DefaultInputSize, yolov4.DefaultInputSize
		}
		m, err := yolov4.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedModel, "%q", args.Name)
	}
}
