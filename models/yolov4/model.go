// Package yolov4 - YOLOv4 model.
package yolov4

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/video-detect/models/model"
	"github.com/nvr-ai/video-detect/models/postprocess"
)

// DefaultInputSize is the square input edge of the published YOLOv4 ONNX export.
const DefaultInputSize = 608

// Node names of the pytorch YOLOv4 ONNX export.
var (
	DefaultInputs  = []string{"input"}
	DefaultOutputs = []string{"boxes", "confs"}
)

// YOLOv4 is the instance of the YOLOv4 model.
type YOLOv4 struct {
	options       model.Options
	postProcessor *postprocess.PostProcessor
}

// Options returns the options for the YOLOv4 model.
//
// Returns:
//   - The options for the YOLOv4 model.
func (m *YOLOv4) Options() model.Options {
	return m.options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
//   - An error if a required field is missing or the thresholds are invalid.
func NewModel(args model.NewModelArgs) (*YOLOv4, error) {
	if args.Path == "" {
		return nil, errors.New("NewModel requires path to be set")
	}

	if len(args.Inputs) == 0 {
		return nil, errors.New("NewModel requires inputs to be set")
	}

	if len(args.Outputs) != 2 {
		return nil, errors.Errorf("NewModel requires the boxes and confs outputs, got %v", args.Outputs)
	}

	if args.InputSize.X <= 0 || args.InputSize.Y <= 0 {
		return nil, errors.Errorf("NewModel requires a positive input size, got %v", args.InputSize)
	}

	pp, err := postprocess.NewPostProcessor(args.PostProcess, args.Options...)
	if err != nil {
		return nil, err
	}

	return &YOLOv4{
		options: model.Options{
			Name:        model.ModelNameYOLOv4,
			Family:      model.ModelFamilyYOLO,
			Path:        args.Path,
			Inputs:      args.Inputs,
			Outputs:     args.Outputs,
			InputSize:   args.InputSize,
			PostProcess: args.PostProcess,
		},
		postProcessor: pp,
	}, nil
}
