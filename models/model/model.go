// Package model - Definitions shared by detection models.
package model

import (
	"image"

	"github.com/nvr-ai/video-detect/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv4 is the name of the YOLOv4 model.
	ModelNameYOLOv4 Name = "yolov4"
)

// Options describes a loaded model.
type Options struct {
	Name   Name   `json:"name" yaml:"name"`
	Family Family `json:"family" yaml:"family"`
	Path   string `json:"path" yaml:"path"`
	// Input node names.
	Inputs []string `json:"inputs" yaml:"inputs"`
	// Output node names, boxes first.
	Outputs []string `json:"outputs" yaml:"outputs"`
	// InputSize is the width and height the network expects.
	InputSize image.Point `json:"input_size" yaml:"input_size"`
	// PostProcess holds the detection thresholds.
	PostProcess postprocess.Config `json:"postprocess" yaml:"postprocess"`
}

// Model is a detection model: it prepares frames for the network and turns the raw network
// output into detections.
type Model interface {
	Options() Options
	PreProcess(img image.Image) []float32
	PostProcess(out postprocess.RawOutput) ([]postprocess.DetectionList, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name        Name               `json:"name" yaml:"name"`
	Path        string             `json:"path" yaml:"path"`
	Inputs      []string           `json:"inputs" yaml:"inputs"`
	Outputs     []string           `json:"outputs" yaml:"outputs"`
	InputSize   image.Point        `json:"input_size" yaml:"input_size"`
	PostProcess postprocess.Config `json:"postprocess" yaml:"postprocess"`
	// Options are passed to the model's post-processor (profiler, logger).
	Options []postprocess.Option `json:"-" yaml:"-"`
}
