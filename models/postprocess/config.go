package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidThreshold is returned for thresholds that are NaN or outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrShapeMismatch is returned when the network output tensors are malformed or disagree.
	ErrShapeMismatch = errors.New("tensor shape mismatch")
)

const (
	// DefaultConfidenceThreshold is the minimum (exclusive) confidence of a detection.
	DefaultConfidenceThreshold float32 = 0.4
	// DefaultIoUThreshold is the overlap above which a lower scoring box is suppressed.
	DefaultIoUThreshold float32 = 0.6
)

// Config defines the parameters of the detection post-processing.
type Config struct {
	// ConfidenceThreshold drops anchors whose best class score is not strictly above it.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// IoUThreshold is the overlap threshold for suppression.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// NumClasses is the expected class dimension of the scores tensor. Zero accepts any.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// NumWorkers bounds the goroutines running per-class NMS. Zero or one runs sequentially.
	NumWorkers int `json:"workers" yaml:"workers"`
}

// DefaultConfig returns the thresholds used for YOLOv4 video inference.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		IoUThreshold:        DefaultIoUThreshold,
		NumWorkers:          1,
	}
}

// Validate checks the configuration.
//
// Returns:
//   - error: ErrInvalidThreshold (wrapped) for a bad threshold, or a descriptive error.
func (c Config) Validate() error {
	if err := ValidateThreshold("confidence_threshold", c.ConfidenceThreshold); err != nil {
		return err
	}
	if err := ValidateThreshold("iou_threshold", c.IoUThreshold); err != nil {
		return err
	}
	if c.NumClasses < 0 {
		return errors.Errorf("num_classes must not be negative, got %d", c.NumClasses)
	}
	if c.NumWorkers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.NumWorkers)
	}
	return nil
}

// ValidateThreshold rejects NaN, negative, and greater than one values.
func ValidateThreshold(name string, value float32) error {
	if math32.IsNaN(value) || value < 0 || value > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "%s must be within [0, 1], got %v", name, value)
	}
	return nil
}
