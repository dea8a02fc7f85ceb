package postprocess

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/video-detect/profiler"
)

// Operation names recorded on the profiler.
const (
	OperationDecode = "postprocess.decode"
	OperationNMS    = "postprocess.nms"
	OperationTotal  = "postprocess.total"
)

// PostProcessor turns raw network output into per-image detections.
type PostProcessor struct {
	config   Config
	profiler *profiler.Profiler
	logger   logrus.FieldLogger
}

// Option configures a PostProcessor.
type Option func(*PostProcessor)

// WithProfiler records decode and NMS timings on p.
func WithProfiler(p *profiler.Profiler) Option {
	return func(pp *PostProcessor) {
		pp.profiler = p
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(pp *PostProcessor) {
		pp.logger = l
	}
}

// NewPostProcessor creates a post-processor after validating the configuration.
//
// Arguments:
//   - cfg: The thresholds and concurrency settings.
//   - opts: Optional profiler and logger.
//
// Returns:
//   - *PostProcessor: The post-processor.
//   - error: ErrInvalidThreshold (wrapped) if a threshold is out of range.
func NewPostProcessor(cfg Config, opts ...Option) (*PostProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pp := &PostProcessor{
		config: cfg,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(pp)
	}
	return pp, nil
}

// Config returns the configuration of the post-processor.
func (pp *PostProcessor) Config() Config {
	return pp.config
}

// Process decodes, filters, and suppresses the output of one batch.
//
// Suppression runs per class, so boxes of different classes never suppress each other. Each
// returned list holds the detections of one image, grouped by ascending class id and, within
// a class, in NMS order.
//
// Arguments:
//   - out: The network output for one batch.
//
// Returns:
//   - []DetectionList: One list per batch image; an image without detections has an empty list.
//   - error: ErrShapeMismatch (wrapped) if the output is malformed or has an unexpected class count.
func (pp *PostProcessor) Process(out RawOutput) ([]DetectionList, error) {
	return pp.ProcessContext(context.Background(), out)
}

// ProcessContext is Process with cancellation between classes.
func (pp *PostProcessor) ProcessContext(ctx context.Context, out RawOutput) ([]DetectionList, error) {
	stopTotal := pp.profiler.StartOperation(OperationTotal)
	defer stopTotal()

	dims, err := out.Dims()
	if err != nil {
		return nil, err
	}
	if pp.config.NumClasses > 0 && dims.Classes != pp.config.NumClasses {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected %d classes, got %d", pp.config.NumClasses, dims.Classes)
	}

	stopDecode := pp.profiler.StartOperation(OperationDecode)
	batch, err := Decode(out, pp.config.ConfidenceThreshold)
	decodeTime := stopDecode()
	if err != nil {
		return nil, err
	}

	stopNMS := pp.profiler.StartOperation(OperationNMS)
	results := make([]DetectionList, len(batch))
	for i, groups := range batch {
		detections, err := pp.suppress(ctx, groups)
		if err != nil {
			return nil, err
		}
		results[i] = detections
	}
	nmsTime := stopNMS()

	pp.logger.WithFields(logrus.Fields{
		"batch":   dims.Batch,
		"anchors": dims.Anchors,
		"classes": dims.Classes,
		"decode":  decodeTime,
		"nms":     nmsTime,
	}).Debug("post-processed batch")

	return results, nil
}

// suppress runs NMS for every class of one image and concatenates the survivors in class order.
func (pp *PostProcessor) suppress(ctx context.Context, groups ClassGroups) (DetectionList, error) {
	perClass := make([]DetectionList, len(groups))

	if pp.config.NumWorkers <= 1 {
		for cls, candidates := range groups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			perClass[cls] = ApplyNMS(candidates, pp.config.IoUThreshold)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(pp.config.NumWorkers)
		for cls, candidates := range groups {
			if len(candidates) == 0 {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				perClass[cls] = ApplyNMS(candidates, pp.config.IoUThreshold)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	total := 0
	for _, d := range perClass {
		total += len(d)
	}
	detections := make(DetectionList, 0, total)
	for _, d := range perClass {
		detections = append(detections, d...)
	}
	return detections, nil
}
