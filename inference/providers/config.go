// Package providers - Execution provider and session configuration.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// GraphOptimization names an ONNX Runtime graph optimization level.
type GraphOptimization string

const (
	// GraphOptimizationDisabled disables all graph rewrites.
	GraphOptimizationDisabled GraphOptimization = "disabled"
	// GraphOptimizationBasic enables redundant node removal and constant folding.
	GraphOptimizationBasic GraphOptimization = "basic"
	// GraphOptimizationExtended adds node fusions.
	GraphOptimizationExtended GraphOptimization = "extended"
	// GraphOptimizationAll adds layout optimizations.
	GraphOptimizationAll GraphOptimization = "all"
)

// Config represents the configuration of the execution provider and the session it runs in.
type Config struct {
	// Backend specifies the execution provider: cpu, cuda, coreml or openvino.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// SharedLibraryPath is the onnxruntime shared library. Empty picks the platform default.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// IntraOpThreads bounds the threads used inside a single operator. Zero lets ORT decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads bounds the threads used across independent operators. Zero lets ORT decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// GraphOptimization selects the graph rewrite level applied when loading the model.
	GraphOptimization GraphOptimization `json:"graph_optimization" yaml:"graph_optimization"`

	// Backend specific options; only the selected backend's options are used.
	CUDA     CUDAOptions     `json:"cuda" yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml" yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns a CPU configuration with extended graph optimizations.
func DefaultConfig() Config {
	return Config{
		Backend:           CPUProviderBackend,
		GraphOptimization: GraphOptimizationExtended,
	}
}

// Validate checks the configuration.
//
// Returns:
//   - error: A descriptive error for the first invalid field.
func (c Config) Validate() error {
	if _, err := NewProvider(c); err != nil {
		return err
	}
	if c.IntraOpThreads < 0 {
		return errors.Errorf("intra_op_threads must not be negative, got %d", c.IntraOpThreads)
	}
	if c.InterOpThreads < 0 {
		return errors.Errorf("inter_op_threads must not be negative, got %d", c.InterOpThreads)
	}
	if _, err := c.GraphOptimization.Level(); err != nil {
		return err
	}
	return nil
}

// LibraryPath returns the configured shared library path or the platform default.
func (c Config) LibraryPath() string {
	if c.SharedLibraryPath != "" {
		return c.SharedLibraryPath
	}
	return GetSharedLibPath()
}

// Level maps the name to the ONNX Runtime level. Empty means extended.
func (g GraphOptimization) Level() (ort.GraphOptimizationLevel, error) {
	switch g {
	case GraphOptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll, nil
	case GraphOptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, nil
	case GraphOptimizationExtended, "":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case GraphOptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, errors.Errorf("unknown graph optimization level %q", g)
	}
}
