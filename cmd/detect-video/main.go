package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/video-detect/config"
	"github.com/nvr-ai/video-detect/inference"
	"github.com/nvr-ai/video-detect/inference/providers"
	"github.com/nvr-ai/video-detect/models"
	"github.com/nvr-ai/video-detect/models/model"
	"github.com/nvr-ai/video-detect/models/postprocess"
	"github.com/nvr-ai/video-detect/profiler"
	"github.com/nvr-ai/video-detect/video"
)

// flags holds the command line; zero values leave the configuration untouched.
type flags struct {
	configPath *string
	model      *string
	input      *string
	output     *string
	frames     *int
	verbose    *bool
	classes    *int
	names      *string
	conf       *string
	iou        *string
	workers    *int
	provider   *string
	detections *string
	warmUp     *int
	print      *bool
}

func parseFlags(args []string) (*flags, *argparse.Parser, error) {
	parser := argparse.NewParser("detect-video", "Detect objects in a video with a YOLOv4 ONNX model")
	f := &flags{
		configPath: parser.String("", "config", &argparse.Options{Help: "YAML configuration file; flags override it"}),
		model:      parser.String("m", "model", &argparse.Options{Help: "Path to the model file"}),
		input:      parser.String("i", "input", &argparse.Options{Help: "Path to the video file or a directory of frames"}),
		output:     parser.String("o", "output", &argparse.Options{Help: "Path to the output video"}),
		frames:     parser.Int("f", "frame_count", &argparse.Options{Help: "Number of frames to run the video"}),
		verbose:    parser.Flag("v", "verbose", &argparse.Options{Help: "Enable more details"}),
		classes:    parser.Int("c", "num_classes", &argparse.Options{Help: "Number of classes model trained on (default 80)"}),
		names:      parser.String("", "names", &argparse.Options{Help: "Class names file, one per line"}),
		conf:       parser.String("", "conf", &argparse.Options{Help: "Confidence threshold (default 0.4)"}),
		iou:        parser.String("", "iou", &argparse.Options{Help: "NMS IoU threshold (default 0.6)"}),
		workers:    parser.Int("", "workers", &argparse.Options{Help: "Classes suppressed in parallel (default 4)"}),
		provider:   parser.Selector("", "provider", providerNames(), &argparse.Options{Help: "Execution provider"}),
		detections: parser.String("", "detections", &argparse.Options{Help: "Write every frame's detections to this JSON lines file"}),
		warmUp:     parser.Int("", "warmup", &argparse.Options{Help: "Inference runs before the first frame"}),
		print:      parser.Flag("", "print-config", &argparse.Options{Help: "Print the merged configuration as YAML and exit"}),
	}
	return f, parser, parser.Parse(args)
}

func providerNames() []string {
	names := make([]string, len(providers.Backends))
	for i, b := range providers.Backends {
		names[i] = string(b)
	}
	return names
}

// buildConfig loads the configuration file, if any, and applies the flags over it.
func buildConfig(f *flags) (config.Config, error) {
	cfg := config.Default()
	if *f.configPath != "" {
		var err error
		if cfg, err = config.Load(*f.configPath); err != nil {
			return cfg, err
		}
	}

	if *f.model != "" {
		cfg.Model.Path = *f.model
	}
	if *f.input != "" {
		cfg.Video.Input = *f.input
	}
	if *f.output != "" {
		cfg.Video.Output = *f.output
	}
	if *f.frames != 0 {
		cfg.Video.MaxFrames = *f.frames
	}
	if *f.verbose {
		cfg.Log.Verbose = true
	}
	if *f.classes != 0 {
		cfg.Model.NumClasses = *f.classes
		cfg.PostProcess.NumClasses = *f.classes
	}
	if *f.names != "" {
		cfg.Model.NamesFile = *f.names
	}
	if *f.conf != "" {
		v, err := strconv.ParseFloat(*f.conf, 32)
		if err != nil {
			return cfg, errors.Wrap(err, "--conf")
		}
		cfg.PostProcess.ConfidenceThreshold = float32(v)
	}
	if *f.iou != "" {
		v, err := strconv.ParseFloat(*f.iou, 32)
		if err != nil {
			return cfg, errors.Wrap(err, "--iou")
		}
		cfg.PostProcess.IoUThreshold = float32(v)
	}
	if *f.workers != 0 {
		cfg.PostProcess.NumWorkers = *f.workers
	}
	if *f.provider != "" {
		cfg.Provider.Backend = providers.ProviderBackend(*f.provider)
	}
	if *f.detections != "" {
		cfg.Video.DetectionsPath = *f.detections
	}

	return cfg, cfg.Validate()
}

func main() {
	f, parser, err := parseFlags(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := buildConfig(f)
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if *f.print {
		if err := printConfig(os.Stdout, cfg); err != nil {
			logger.WithError(err).Fatal("failed to print configuration")
		}
		return
	}

	level, _ := cfg.Log.LogrusLevel()
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *f.warmUp, logger); err != nil {
		logger.WithError(err).Error("detection failed")
		stop()
		os.Exit(1)
	}
}

// printConfig writes cfg in the format config.Load reads.
func printConfig(w io.Writer, cfg config.Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return errors.Wrap(err, "error encoding configuration")
	}
	_, err = w.Write(data)
	return err
}

func run(ctx context.Context, cfg config.Config, warmUp int, logger *logrus.Logger) error {
	var prof *profiler.Profiler
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		prof = profiler.New(profiler.ProfilingOptions{Logger: logger})
		prof.Start()
		defer prof.Stop()
	}

	names, err := models.ClassNamesFor(cfg.Model.NumClasses, cfg.Model.NamesFile)
	if err != nil {
		return err
	}

	m, err := models.NewModel(model.NewModelArgs{
		Name:        model.ModelNameYOLOv4,
		Path:        cfg.Model.Path,
		InputSize:   image.Pt(cfg.Model.InputWidth, cfg.Model.InputHeight),
		PostProcess: cfg.PostProcess,
		Options: []postprocess.Option{
			postprocess.WithLogger(logger),
			postprocess.WithProfiler(prof),
		},
	})
	if err != nil {
		return err
	}

	detector, err := inference.Open(cfg.Provider, m, logger, inference.WithProfiler(prof))
	if err != nil {
		return err
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.WithError(err).Error("failed to close detector")
		}
	}()

	if warmUp > 0 {
		if err := detector.WarmUp(ctx, warmUp); err != nil {
			return errors.Wrap(err, "warm up")
		}
	}

	runner, err := video.NewRunner(video.RunnerConfig{
		Input:          cfg.Video.Input,
		Output:         cfg.Video.Output,
		MaxFrames:      cfg.Video.MaxFrames,
		DetectionsPath: cfg.Video.DetectionsPath,
		ProgressEvery:  cfg.Video.ProgressEvery,
	}, detector, names, video.WithLogger(logger), video.WithProfiler(prof))
	if err != nil {
		return err
	}

	stats, err := runner.Run(ctx)
	logger.WithFields(logrus.Fields{
		"frames":     stats.Frames,
		"detections": stats.Detections,
		"elapsed":    stats.Elapsed,
		"inference":  stats.Inference,
	}).Info("done")
	return err
}
