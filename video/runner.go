package video

import (
	"context"
	"image"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/video-detect/models"
	"github.com/nvr-ai/video-detect/models/postprocess"
	"github.com/nvr-ai/video-detect/profiler"
)

// Operation and metric names recorded on the profiler.
const (
	OperationFrame     = "video.frame"
	MetricInferenceFPS = "video.inference_fps"
	MetricFrames       = "video.frames"
	MetricDetections   = "video.detections"
)

// DefaultDirectoryFPS is the frame rate assumed for a directory of frames.
const DefaultDirectoryFPS = 25

// Detector finds objects in a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (postprocess.DetectionList, time.Duration, error)
}

// RunnerConfig selects the input and output of a run.
type RunnerConfig struct {
	// Input is a video file or a directory of numbered frames.
	Input string
	// Output is the annotated mp4 file; an existing file is replaced.
	Output string
	// MaxFrames stops the run after this many frames. Zero processes the whole input.
	MaxFrames int
	// DetectionsPath optionally receives the detections of every frame as JSON lines.
	DetectionsPath string
	// ProgressEvery is the number of frames between progress log lines. Zero disables them.
	ProgressEvery int
	// DirectoryFPS is the output frame rate when Input is a directory.
	DirectoryFPS float64
}

// Stats summarises a run.
type Stats struct {
	Frames     int
	Detections int
	Elapsed    time.Duration
	Inference  time.Duration
}

// Runner reads frames, detects objects, draws them, and writes the annotated video.
type Runner struct {
	config   RunnerConfig
	detector Detector
	names    *models.ClassSet
	logger   logrus.FieldLogger
	profiler *profiler.Profiler

	// frames and detections mirror Stats for the profiler's collector.
	frames     atomic.Int64
	detections atomic.Int64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger for progress output.
func WithLogger(l logrus.FieldLogger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithProfiler records per-frame timings and the inference frame rate.
func WithProfiler(p *profiler.Profiler) RunnerOption {
	return func(r *Runner) {
		r.profiler = p
	}
}

// NewRunner creates a runner.
//
// Arguments:
//   - cfg: The input and output of the run.
//   - detector: Runs the network on a frame.
//   - names: The class labels; nil draws unlabeled red boxes.
//   - opts: Optional logger and profiler.
//
// Returns:
//   - *Runner: The runner.
//   - error: An error if the configuration is incomplete.
func NewRunner(cfg RunnerConfig, detector Detector, names *models.ClassSet, opts ...RunnerOption) (*Runner, error) {
	if cfg.Input == "" {
		return nil, errors.New("input is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output is required")
	}
	if cfg.MaxFrames < 0 {
		return nil, errors.Errorf("max frames must not be negative, got %d", cfg.MaxFrames)
	}
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if cfg.DirectoryFPS <= 0 {
		cfg.DirectoryFPS = DefaultDirectoryFPS
	}

	r := &Runner{
		config:   cfg,
		detector: detector,
		names:    names,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.profiler.AddMetricsCollector(r)
	return r, nil
}

// CollectMetrics reports the frames written and detections found so far.
func (r *Runner) CollectMetrics() map[string]float64 {
	return map[string]float64{
		MetricFrames:     float64(r.frames.Load()),
		MetricDetections: float64(r.detections.Load()),
	}
}

// Open opens the configured input as a video file or, for a directory, as numbered frames.
func (r *Runner) Open() (FrameSource, error) {
	info, err := os.Stat(r.config.Input)
	if err != nil {
		return nil, errors.Wrap(err, "error opening input")
	}
	if info.IsDir() {
		return OpenFrameDirectory(r.config.Input, r.config.DirectoryFPS)
	}
	return OpenVideo(r.config.Input)
}

// Run processes the input until it ends, MaxFrames frames were written, or ctx is cancelled.
//
// Returns:
//   - Stats: What was processed, also on error.
//   - error: The first read, detection, or write error, or the context error.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	source, err := r.Open()
	if err != nil {
		return Stats{}, err
	}
	defer source.Close()

	return r.Process(ctx, source)
}

// Process runs the detection loop over an open source.
func (r *Runner) Process(ctx context.Context, source FrameSource) (stats Stats, err error) {
	started := time.Now()
	defer func() { stats.Elapsed = time.Since(started) }()

	if _, err := os.Stat(r.config.Output); err == nil {
		r.logger.WithField("output", r.config.Output).Info("clearing the output path")
		if err := os.Remove(r.config.Output); err != nil {
			return stats, errors.Wrap(err, "error clearing output")
		}
	}

	size := source.Size()
	inputFPS := int(source.FPS())
	writer, err := gocv.VideoWriterFile(r.config.Output, "mp4v", float64(inputFPS), size.X, size.Y, true)
	if err != nil {
		return stats, errors.Wrapf(err, "error creating %s", r.config.Output)
	}
	defer writer.Close()

	var sink *DetectionSink
	if r.config.DetectionsPath != "" {
		sink, err = CreateDetectionSink(r.config.DetectionsPath)
		if err != nil {
			return stats, err
		}
		defer func() {
			if cerr := sink.Close(); cerr != nil {
				r.logger.WithError(cerr).Error("failed to close detections file")
			}
		}()
	}

	r.logger.WithFields(logrus.Fields{
		"input":  r.config.Input,
		"output": r.config.Output,
		"size":   size,
		"fps":    inputFPS,
	}).Info("processing video")

	frame := gocv.NewMat()
	defer frame.Close()

	for r.config.MaxFrames == 0 || stats.Frames < r.config.MaxFrames {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		ok, err := source.Read(&frame)
		if err != nil {
			return stats, err
		}
		if !ok {
			break
		}

		stopFrame := r.profiler.StartOperation(OperationFrame)
		dets, inference, err := r.processFrame(ctx, &frame, inputFPS)
		stopFrame()
		if err != nil {
			return stats, errors.Wrapf(err, "frame %d", stats.Frames+1)
		}

		if err := writer.Write(frame); err != nil {
			return stats, errors.Wrapf(err, "error writing frame %d", stats.Frames+1)
		}
		stats.Frames++
		stats.Detections += len(dets)
		stats.Inference += inference
		r.frames.Store(int64(stats.Frames))
		r.detections.Store(int64(stats.Detections))

		if sink != nil {
			if err := sink.Write(stats.Frames, dets); err != nil {
				return stats, err
			}
		}

		if r.config.ProgressEvery > 0 && stats.Frames%r.config.ProgressEvery == 0 {
			r.logger.WithFields(logrus.Fields{
				"frame":         stats.Frames,
				"inference_fps": InferenceFPS(inference),
			}).Info("progress")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"frames":     stats.Frames,
		"detections": stats.Detections,
		"elapsed":    time.Since(started),
	}).Info("finished video")

	return stats, nil
}

// processFrame detects objects in frame and draws them with the frame rate overlay.
func (r *Runner) processFrame(ctx context.Context, frame *gocv.Mat, inputFPS int) (postprocess.DetectionList, time.Duration, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, 0, errors.Wrap(err, "error converting frame")
	}

	dets, inference, err := r.detector.Detect(ctx, img)
	if err != nil {
		return nil, inference, err
	}

	fps := InferenceFPS(inference)
	r.profiler.RecordMetric(MetricInferenceFPS, fps)

	for _, d := range dets {
		r.logger.WithField("detection", d.String()).Debug("detected object")
	}

	DrawDetections(frame, dets, r.names)
	DrawFPS(frame, inputFPS, fps)

	return dets, inference, nil
}

// InferenceFPS converts an inference duration to a frame rate rounded to two decimals.
func InferenceFPS(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return math.Round(100/d.Seconds()) / 100
}
