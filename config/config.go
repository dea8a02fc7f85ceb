// Package config - YAML configuration of the video detector.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/video-detect/inference/providers"
	"github.com/nvr-ai/video-detect/models/postprocess"
	"github.com/nvr-ai/video-detect/models/yolov4"
)

// DefaultProgressEvery is the number of frames between progress log lines.
const DefaultProgressEvery = 25

// Config is the full configuration of a detection run.
type Config struct {
	Model       ModelConfig        `json:"model" yaml:"model"`
	PostProcess postprocess.Config `json:"postprocess" yaml:"postprocess"`
	Provider    providers.Config   `json:"provider" yaml:"provider"`
	Video       VideoConfig        `json:"video" yaml:"video"`
	Log         LogConfig          `json:"log" yaml:"log"`
}

// ModelConfig selects the network and its labels.
type ModelConfig struct {
	// Path to the ONNX model file.
	Path string `json:"path" yaml:"path"`
	// InputWidth and InputHeight are the network input size.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// NumClasses is the class dimension of the scores output.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// NamesFile is an optional label file; 80 and 20 classes have built-in labels.
	NamesFile string `json:"names_file" yaml:"names_file"`
}

// VideoConfig selects the input and output of a run.
type VideoConfig struct {
	// Input is a video file or a directory of frames.
	Input string `json:"input" yaml:"input"`
	// Output is the annotated video file.
	Output string `json:"output" yaml:"output"`
	// MaxFrames stops the run after this many frames. Zero processes the whole input.
	MaxFrames int `json:"max_frames" yaml:"max_frames"`
	// DetectionsPath is an optional JSON lines file receiving every frame's detections.
	DetectionsPath string `json:"detections_path" yaml:"detections_path"`
	// ProgressEvery is the number of frames between progress log lines.
	ProgressEvery int `json:"progress_every" yaml:"progress_every"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is a logrus level name.
	Level string `json:"level" yaml:"level"`
	// Verbose forces the debug level.
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// Default returns the configuration of the stock YOLOv4 608x608 COCO model.
func Default() Config {
	pp := postprocess.DefaultConfig()
	pp.NumClasses = 80
	pp.NumWorkers = 4

	return Config{
		Model: ModelConfig{
			InputWidth:  yolov4.DefaultInputSize,
			InputHeight: yolov4.DefaultInputSize,
			NumClasses:  80,
		},
		PostProcess: pp,
		Provider:    providers.DefaultConfig(),
		Video: VideoConfig{
			ProgressEvery: DefaultProgressEvery,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The merged configuration (not yet validated).
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "error reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "error parsing %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
//
// postprocess.num_classes follows model.num_classes unless the document sets it to a
// non-zero value.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.PostProcess.NumClasses = 0

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if cfg.PostProcess.NumClasses == 0 {
		cfg.PostProcess.NumClasses = cfg.Model.NumClasses
	}
	return cfg, nil
}

// Validate checks the configuration before any resource is opened.
//
// Returns:
//   - error: postprocess.ErrInvalidThreshold (wrapped) for a bad threshold, or a descriptive error.
func (c Config) Validate() error {
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Model.InputWidth <= 0 || c.Model.InputHeight <= 0 {
		return errors.Errorf("model input size must be positive, got %dx%d", c.Model.InputWidth, c.Model.InputHeight)
	}
	if c.Model.NumClasses <= 0 {
		return errors.Errorf("model.num_classes must be positive, got %d", c.Model.NumClasses)
	}
	if err := c.PostProcess.Validate(); err != nil {
		return errors.Wrap(err, "postprocess")
	}
	if c.PostProcess.NumClasses != 0 && c.PostProcess.NumClasses != c.Model.NumClasses {
		return errors.Errorf("postprocess.num_classes %d disagrees with model.num_classes %d",
			c.PostProcess.NumClasses, c.Model.NumClasses)
	}
	if err := c.Provider.Validate(); err != nil {
		return errors.Wrap(err, "provider")
	}
	if c.Video.Input == "" {
		return errors.New("video.input is required")
	}
	if c.Video.Output == "" {
		return errors.New("video.output is required")
	}
	if c.Video.MaxFrames < 0 {
		return errors.Errorf("video.max_frames must not be negative, got %d", c.Video.MaxFrames)
	}
	if c.Video.ProgressEvery < 0 {
		return errors.Errorf("video.progress_every must not be negative, got %d", c.Video.ProgressEvery)
	}
	if _, err := c.Log.LogrusLevel(); err != nil {
		return err
	}
	return nil
}

// LogrusLevel returns the configured level; Verbose wins over Level.
func (l LogConfig) LogrusLevel() (logrus.Level, error) {
	if l.Verbose {
		return logrus.DebugLevel, nil
	}
	if l.Level == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return 0, errors.Wrap(err, "log.level")
	}
	return level, nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
