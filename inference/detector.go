package inference

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/video-detect/inference/providers"
	"github.com/nvr-ai/video-detect/models/model"
	"github.com/nvr-ai/video-detect/models/postprocess"
	"github.com/nvr-ai/video-detect/profiler"
)

// Operation names recorded on the profiler.
const (
	OperationPreProcess = "inference.preprocess"
	OperationRun        = "inference.run"
)

// Detector pairs a model with the engine that runs it.
type Detector struct {
	model    model.Model
	engine   Engine
	profiler *profiler.Profiler
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithProfiler records pre-processing and inference timings on p.
func WithProfiler(p *profiler.Profiler) DetectorOption {
	return func(d *Detector) {
		d.profiler = p
	}
}

// NewDetector creates a detector.
func NewDetector(m model.Model, e Engine, opts ...DetectorOption) (*Detector, error) {
	if m == nil {
		return nil, errors.New("model not configured")
	}
	if e == nil {
		return nil, errors.New("engine not configured")
	}

	d := &Detector{model: m, engine: e}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Open creates an ONNX Runtime session for the model and wraps it in a detector.
//
// Arguments:
//   - cfg: The execution provider configuration.
//   - m: The model; its path and node names select the session tensors.
//   - logger: Receives session setup logs.
//   - opts: Detector options.
//
// Returns:
//   - *Detector: The detector. Close releases the session.
//   - error: An error if the session could not be created.
func Open(cfg providers.Config, m model.Model, logger logrus.FieldLogger, opts ...DetectorOption) (*Detector, error) {
	mo := m.Options()
	session, err := providers.NewSession(cfg, providers.NewSessionArgs{
		ModelPath: mo.Path,
		Inputs:    mo.Inputs,
		Outputs:   mo.Outputs,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	engine, err := NewONNXEngine(session)
	if err != nil {
		session.Close()
		return nil, err
	}

	return NewDetector(m, engine, opts...)
}

// Model returns the model of the detector.
func (d *Detector) Model() model.Model {
	return d.model
}

// Detect runs the full pipeline on one frame.
//
// Arguments:
//   - ctx: Cancels the detection before inference starts.
//   - img: The frame.
//
// Returns:
//   - postprocess.DetectionList: The detections of the frame with normalised boxes.
//   - time.Duration: The time spent in the network.
//   - error: An error if inference or post-processing fails.
func (d *Detector) Detect(ctx context.Context, img image.Image) (postprocess.DetectionList, time.Duration, error) {
	stopPre := d.profiler.StartOperation(OperationPreProcess)
	input := d.model.PreProcess(img)
	stopPre()

	stopRun := d.profiler.StartOperation(OperationRun)
	out, err := d.engine.Run(ctx, input)
	elapsed := stopRun()
	if err != nil {
		return nil, elapsed, err
	}

	batch, err := d.model.PostProcess(out)
	if err != nil {
		return nil, elapsed, err
	}
	if len(batch) == 0 {
		return nil, elapsed, errors.Wrap(postprocess.ErrShapeMismatch, "empty batch")
	}

	return batch[0], elapsed, nil
}

// WarmUp runs inference on a blank frame to warm up the runtime caches.
//
// Arguments:
//   - ctx: Cancels the remaining runs.
//   - runs: The number of times to run inference.
//
// Returns:
//   - error: An error if a run fails.
func (d *Detector) WarmUp(ctx context.Context, runs int) error {
	size := d.model.Options().InputSize
	blank := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for i := 0; i < runs; i++ {
		if _, _, err := d.Detect(ctx, blank); err != nil {
			return errors.Wrapf(err, "warm-up run %d", i)
		}
	}
	return nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
