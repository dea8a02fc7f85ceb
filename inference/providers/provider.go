// Package providers - ONNX Runtime execution providers and sessions.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

// ErrUnknownBackend is returned for a backend name that has no registered provider.
var ErrUnknownBackend = errors.New("unknown execution provider backend")

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the name of the backend.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Apply appends the provider to the session options.
	Apply(options *ort.SessionOptions) error
}

// Backends lists every supported backend.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// NewProvider creates a new provider based on the configured backend.
//
// Arguments:
//   - cfg: The provider configuration; only the options of the selected backend are used.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: ErrUnknownBackend (wrapped) if the backend is not supported.
func NewProvider(cfg Config) (ExecutionProvider, error) {
	switch cfg.Backend {
	case CPUProviderBackend, "":
		return NewCPUProvider(), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(cfg.CUDA), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(cfg.CoreML), nil
	case OpenVINOProviderBackend:
		return NewOpenVINOProvider(cfg.OpenVINO), nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", cfg.Backend)
	}
}
