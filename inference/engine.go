// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/video-detect/inference/providers"
	"github.com/nvr-ai/video-detect/models/postprocess"
)

// Engine runs the network on a prepared input tensor.
type Engine interface {
	// Run executes the network on input, which must hold exactly one input tensor's values.
	Run(ctx context.Context, input []float32) (postprocess.RawOutput, error)
	Close() error
}

// ONNXEngine runs a YOLOv4 style session with one input and a boxes/confs output pair.
type ONNXEngine struct {
	mu      sync.Mutex
	session *providers.Session
}

// NewONNXEngine wraps a session. The engine owns the session from then on.
//
// Arguments:
//   - session: A session with one input and two outputs (boxes first).
//
// Returns:
//   - *ONNXEngine: The engine.
//   - error: An error if the session has the wrong number of tensors.
func NewONNXEngine(session *providers.Session) (*ONNXEngine, error) {
	if session == nil || session.Session == nil {
		return nil, errors.New("NewONNXEngine requires an open session")
	}
	if len(session.Inputs) != 1 {
		return nil, errors.Errorf("expected 1 input tensor, got %d", len(session.Inputs))
	}
	if len(session.Outputs) != 2 {
		return nil, errors.Errorf("expected boxes and confs output tensors, got %d", len(session.Outputs))
	}
	return &ONNXEngine{session: session}, nil
}

// Run copies input into the bound input tensor, runs the session, and copies the outputs so
// that the result stays valid after the next call.
//
// Arguments:
//   - ctx: Checked before the native call; the call itself cannot be interrupted.
//   - input: The prepared [1, 3, H, W] tensor values.
//
// Returns:
//   - postprocess.RawOutput: The boxes and confs of the batch.
//   - error: An error if the input has the wrong size or the session fails.
func (e *ONNXEngine) Run(ctx context.Context, input []float32) (postprocess.RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return postprocess.RawOutput{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return postprocess.RawOutput{}, errors.New("engine is closed")
	}

	dst := e.session.Inputs[0].GetData()
	if len(input) != len(dst) {
		return postprocess.RawOutput{}, errors.Errorf(
			"input holds %d values, the model needs %d (shape %v)",
			len(input), len(dst), e.session.Inputs[0].GetShape(),
		)
	}
	copy(dst, input)

	if err := e.session.Session.Run(); err != nil {
		return postprocess.RawOutput{}, errors.Wrap(err, "failed to run inference")
	}

	boxes, scores := e.session.Outputs[0], e.session.Outputs[1]
	return postprocess.NewRawOutput(
		cloneData(boxes), shapeInts(boxes.GetShape()),
		cloneData(scores), shapeInts(scores.GetShape()),
	)
}

// Close releases the session.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}

func cloneData(t *ort.Tensor[float32]) []float32 {
	src := t.GetData()
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}

func shapeInts(s ort.Shape) []int {
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}
