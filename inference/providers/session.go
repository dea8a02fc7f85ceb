// Package providers - Inference sessions.
package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// InitializeEnvironment loads the onnxruntime shared library and prepares the native
// environment. Only the first call has any effect; later calls return its result.
//
// Arguments:
//   - libPath: The path to the onnxruntime shared library.
//
// Returns:
//   - error: An error if the library is missing or the environment could not be created.
func InitializeEnvironment(libPath string) error {
	envOnce.Do(func() {
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
			return
		}

		// Point ONNX Runtime to the exact shared library path (overrides default search).
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return envErr
}

// Session represents a model session from the onnxruntime with its bound tensors.
type Session struct {
	Session *ort.AdvancedSession
	// Inputs holds one tensor per input name, in the order requested.
	Inputs []*ort.Tensor[float32]
	// Outputs holds one tensor per output name, in the order requested.
	Outputs []*ort.Tensor[float32]
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - error: An error if the native session could not be destroyed.
func (s *Session) Close() error {
	for _, input := range s.Inputs {
		input.Destroy()
	}
	s.Inputs = nil

	for _, output := range s.Outputs {
		output.Destroy()
	}
	s.Outputs = nil

	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}

	return nil
}

// NewSessionArgs represents the arguments for creating a new ONNX session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The input node names.
	Inputs []string
	// The output node names.
	Outputs []string
	// Logger receives the discovered tensor shapes. Defaults to the standard logger.
	Logger logrus.FieldLogger
}

// NewSession creates a new ONNX Runtime session with preallocated input and output tensors.
//
// Order of operations:
//  1. Environment setup: loads the native library once per process.
//  2. Shape discovery: reads the input and output shapes from the model; dynamic dimensions
//     (the batch) are fixed to 1.
//  3. Tensor allocation: prepares fixed-shape buffers for input/output data.
//  4. Session options: threading, graph optimizations and the execution provider.
//  5. Session creation: loads the model and binds the tensors.
//
// Arguments:
//   - cfg: The provider configuration.
//   - args: The model path and node names.
//
// Returns:
//   - *Session: The session holding the native session and its tensors. Close must be called.
//   - error: An error if the session creation fails.
func NewSession(cfg Config, args NewSessionArgs) (*Session, error) {
	if len(args.Inputs) == 0 || len(args.Outputs) == 0 {
		return nil, errors.New("NewSession requires input and output names")
	}
	logger := args.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	if err := InitializeEnvironment(cfg.LibraryPath()); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model info from %s", args.ModelPath)
	}

	inputShapes, err := ResolveShapes(inputInfo, args.Inputs)
	if err != nil {
		return nil, errors.Wrap(err, "inputs")
	}
	outputShapes, err := ResolveShapes(outputInfo, args.Outputs)
	if err != nil {
		return nil, errors.Wrap(err, "outputs")
	}

	s := &Session{}
	for i, shape := range inputShapes {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "error creating input tensor %s", args.Inputs[i])
		}
		s.Inputs = append(s.Inputs, t)
		logger.WithFields(logrus.Fields{"name": args.Inputs[i], "shape": shape}).Debug("bound model input")
	}
	for i, shape := range outputShapes {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "error creating output tensor %s", args.Outputs[i])
		}
		s.Outputs = append(s.Outputs, t)
		logger.WithFields(logrus.Fields{"name": args.Outputs[i], "shape": shape}).Debug("bound model output")
	}

	options, err := NewSessionOptions(cfg, provider)
	if err != nil {
		s.Close()
		return nil, err
	}
	defer options.Destroy()

	inputs := make([]ort.Value, len(s.Inputs))
	for i, t := range s.Inputs {
		inputs[i] = t
	}
	outputs := make([]ort.Value, len(s.Outputs))
	for i, t := range s.Outputs {
		outputs[i] = t
	}

	session, err := ort.NewAdvancedSession(args.ModelPath, args.Inputs, args.Outputs, inputs, outputs, options)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	s.Session = session

	logger.WithFields(logrus.Fields{
		"model":    args.ModelPath,
		"provider": provider.Backend(),
	}).Info("created inference session")

	return s, nil
}

// ResolveShapes looks up the named tensors in the model info and returns their shapes with
// dynamic dimensions fixed to 1.
//
// Arguments:
//   - info: The input or output info read from the model.
//   - names: The node names to resolve, in the order wanted.
//
// Returns:
//   - []ort.Shape: One shape per name.
//   - error: An error if a name is missing or the tensor is not float32.
func ResolveShapes(info []ort.InputOutputInfo, names []string) ([]ort.Shape, error) {
	byName := make(map[string]ort.InputOutputInfo, len(info))
	for _, i := range info {
		byName[i.Name] = i
	}

	shapes := make([]ort.Shape, 0, len(names))
	for _, name := range names {
		i, ok := byName[name]
		if !ok {
			return nil, errors.Errorf("model has no tensor named %q", name)
		}
		if i.DataType != ort.TensorElementDataTypeFloat {
			return nil, errors.Errorf("tensor %q holds %v, not float32", name, i.DataType)
		}

		shape := make(ort.Shape, len(i.Dimensions))
		for d, v := range i.Dimensions {
			if v <= 0 {
				v = 1
			}
			shape[d] = v
		}
		shapes = append(shapes, shape)
	}
	return shapes, nil
}
