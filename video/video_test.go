package video

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/video-detect/images"
	"github.com/nvr-ai/video-detect/models/postprocess"
	"github.com/nvr-ai/video-detect/profiler"
)

type nopDetector struct{}

func (nopDetector) Detect(context.Context, image.Image) (postprocess.DetectionList, time.Duration, error) {
	return postprocess.DetectionList{}, time.Millisecond, nil
}

// readFrameRecords decodes every record of a detections stream.
func readFrameRecords(t *testing.T, r io.Reader) []FrameRecord {
	t.Helper()
	dec := json.NewDecoder(r)
	var records []FrameRecord
	for {
		var rec FrameRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			return records
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
}

func TestDetectionSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewDetectionSink(&buf)

	dets := postprocess.DetectionList{{
		Box:             images.Rect{X1: 0.25, Y1: 0.5, X2: 0.75, Y2: 1},
		Confidence:      0.5,
		ClassConfidence: 0.5,
		ClassID:         7,
	}}
	require.NoError(t, sink.Write(1, dets))
	require.NoError(t, sink.Write(2, postprocess.DetectionList{}))
	require.NoError(t, sink.Close())

	assert.Equal(t,
		`{"frame":1,"detections":[[0.25,0.5,0.75,1,0.5,0.5,7]]}`+"\n"+
			`{"frame":2,"detections":[]}`+"\n",
		buf.String())

	records := readFrameRecords(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, NewFrameRecord(1, dets), records[0])
	assert.Empty(t, records[1].Detections)
}

func TestCreateDetectionSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.jsonl")
	sink, err := CreateDetectionSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Write(1, nil))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"frame":1,"detections":[]}`+"\n", string(data))

	_, err = CreateDetectionSink(filepath.Join(t.TempDir(), "missing", "detections.jsonl"))
	assert.Error(t, err)
}

func TestInferenceFPS(t *testing.T) {
	assert.Equal(t, 0.0, InferenceFPS(0))
	assert.Equal(t, 20.0, InferenceFPS(50*time.Millisecond))
	assert.Equal(t, 33.33, InferenceFPS(30*time.Millisecond))
}

func TestNewRunner(t *testing.T) {
	valid := RunnerConfig{Input: "in.mp4", Output: "out.mp4"}

	r, err := NewRunner(valid, nopDetector{}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultDirectoryFPS), r.config.DirectoryFPS)

	tests := []struct {
		name     string
		cfg      RunnerConfig
		detector Detector
	}{
		{name: "missing input", cfg: RunnerConfig{Output: "out.mp4"}, detector: nopDetector{}},
		{name: "missing output", cfg: RunnerConfig{Input: "in.mp4"}, detector: nopDetector{}},
		{name: "negative frames", cfg: RunnerConfig{Input: "in.mp4", Output: "out.mp4", MaxFrames: -1}, detector: nopDetector{}},
		{name: "missing detector", cfg: valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(tt.cfg, tt.detector, nil)
			assert.Error(t, err)
		})
	}
}

func TestRunner_CollectsProgress(t *testing.T) {
	p := profiler.New(profiler.ProfilingOptions{})
	r, err := NewRunner(RunnerConfig{Input: "in.mp4", Output: "out.mp4"}, nopDetector{}, nil, WithProfiler(p))
	require.NoError(t, err)

	r.frames.Store(12)
	r.detections.Store(30)
	p.Collect()

	frames, ok := p.Metric(MetricFrames)
	require.True(t, ok)
	assert.Equal(t, 12.0, frames.Max)

	detections, ok := p.Metric(MetricDetections)
	require.True(t, ok)
	assert.Equal(t, 30.0, detections.Max)
}

func TestRunner_OpenMissingInput(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		Input:  filepath.Join(t.TempDir(), "missing.mp4"),
		Output: filepath.Join(t.TempDir(), "out.mp4"),
	}, nopDetector{}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.Error(t, err)
}

func TestOpenFrameDirectory_Empty(t *testing.T) {
	_, err := OpenFrameDirectory(t.TempDir(), 25)
	assert.Error(t, err)
}
