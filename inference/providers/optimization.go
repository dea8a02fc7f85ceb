package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// NewSessionOptions creates session options from the configuration and appends the provider.
// The caller must destroy the returned options.
//
// Arguments:
//   - cfg: Threading and graph optimization settings.
//   - provider: The execution provider to append.
//
// Returns:
//   - *ort.SessionOptions: The configured options.
//   - error: An error if an option could not be applied.
func NewSessionOptions(cfg Config, provider ExecutionProvider) (*ort.SessionOptions, error) {
	level, err := cfg.GraphOptimization.Level()
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	// Intra-op threads parallelise a single node (e.g. a convolution); inter-op threads run
	// independent nodes concurrently.
	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	if err := provider.Apply(options); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}
