package postprocess

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/video-detect/images"
	"github.com/nvr-ai/video-detect/profiler"
)

type anchor struct {
	box    images.Rect
	scores []float32
}

// rawOutput builds a single-image output from anchors sharing the same class count.
func rawOutput(t *testing.T, anchors ...anchor) RawOutput {
	t.Helper()
	require.NotEmpty(t, anchors)

	classes := len(anchors[0].scores)
	boxes := make([]float32, 0, len(anchors)*4)
	scores := make([]float32, 0, len(anchors)*classes)
	for _, a := range anchors {
		require.Len(t, a.scores, classes)
		boxes = append(boxes, a.box.X1, a.box.Y1, a.box.X2, a.box.Y2)
		scores = append(scores, a.scores...)
	}

	out, err := NewRawOutput(boxes, []int{1, len(anchors), 1, 4}, scores, []int{1, len(anchors), classes})
	require.NoError(t, err)
	return out
}

func newPostProcessor(t *testing.T, cfg Config, opts ...Option) *PostProcessor {
	t.Helper()
	logger, _ := test.NewNullLogger()
	pp, err := NewPostProcessor(cfg, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return pp
}

func TestProcess_Scenarios(t *testing.T) {
	a := images.Rect{X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5}
	// IoU with a is about 0.90.
	nearA := images.Rect{X1: 0.1, Y1: 0.1, X2: 0.48, Y2: 0.48}
	far := images.Rect{X1: 0.6, Y1: 0.6, X2: 0.9, Y2: 0.9}

	tests := []struct {
		name    string
		anchors []anchor
		want    DetectionList
	}{
		{
			name:    "single anchor above threshold",
			anchors: []anchor{{box: a, scores: []float32{0.5}}},
			want: DetectionList{
				{Box: a, Confidence: 0.5, ClassConfidence: 0.5, ClassID: 0},
			},
		},
		{
			name: "same class overlap keeps the higher score",
			anchors: []anchor{
				{box: nearA, scores: []float32{0.7, 0.1}},
				{box: a, scores: []float32{0.9, 0.1}},
			},
			want: DetectionList{
				{Box: a, Confidence: 0.9, ClassConfidence: 0.9, ClassID: 0},
			},
		},
		{
			name: "different classes are never suppressed against each other",
			anchors: []anchor{
				{box: a, scores: []float32{0.1, 0.8}},
				{box: a, scores: []float32{0.9, 0.1}},
			},
			want: DetectionList{
				{Box: a, Confidence: 0.9, ClassConfidence: 0.9, ClassID: 0},
				{Box: a, Confidence: 0.8, ClassConfidence: 0.8, ClassID: 1},
			},
		},
		{
			name: "all anchors below threshold",
			anchors: []anchor{
				{box: a, scores: []float32{0.1, 0.2}},
				{box: far, scores: []float32{0.3, 0.39}},
			},
			want: DetectionList{},
		},
		{
			name: "tied scores keep the lower anchor index",
			anchors: []anchor{
				{box: far, scores: []float32{0.6}},
				{box: a, scores: []float32{0.8}},
				{box: nearA, scores: []float32{0.8}},
			},
			want: DetectionList{
				{Box: a, Confidence: 0.8, ClassConfidence: 0.8, ClassID: 0},
				{Box: far, Confidence: 0.6, ClassConfidence: 0.6, ClassID: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pp := newPostProcessor(t, DefaultConfig())

			got, err := pp.Process(rawOutput(t, tt.anchors...))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.NotNil(t, got[0])
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestDecode(t *testing.T) {
	box := images.Rect{X1: 0.2, Y1: 0.2, X2: 0.4, Y2: 0.4}

	t.Run("argmax ties pick the first class", func(t *testing.T) {
		groups, err := Decode(rawOutput(t, anchor{box: box, scores: []float32{0.3, 0.7, 0.7}}), 0.4)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.Len(t, groups[0], 3)
		assert.Len(t, groups[0][1], 1)
		assert.Empty(t, groups[0][2])
	})

	t.Run("confidence equal to threshold is dropped", func(t *testing.T) {
		groups, err := Decode(rawOutput(t, anchor{box: box, scores: []float32{0.4}}), 0.4)
		require.NoError(t, err)
		assert.Equal(t, 0, groups[0].Len())
	})

	t.Run("NaN score drops the anchor", func(t *testing.T) {
		nan := float32(math.NaN())
		groups, err := Decode(rawOutput(t,
			anchor{box: box, scores: []float32{0.9, nan}},
			anchor{box: box, scores: []float32{nan, 0.9}},
			anchor{box: box, scores: []float32{0.1, 0.8}},
		), 0.4)
		require.NoError(t, err)
		require.Equal(t, 1, groups[0].Len())
		assert.Equal(t, 2, groups[0][1][0].Anchor)
	})

	t.Run("anchor order is kept within a class", func(t *testing.T) {
		groups, err := Decode(rawOutput(t,
			anchor{box: box, scores: []float32{0.5}},
			anchor{box: box, scores: []float32{0.9}},
			anchor{box: box, scores: []float32{0.7}},
		), 0.4)
		require.NoError(t, err)
		var order []int
		for _, c := range groups[0][0] {
			order = append(order, c.Anchor)
		}
		assert.Equal(t, []int{0, 1, 2}, order)
	})

	t.Run("batch images are decoded independently", func(t *testing.T) {
		boxes := []float32{
			0.1, 0.1, 0.2, 0.2,
			0.3, 0.3, 0.4, 0.4,
		}
		scores := []float32{
			0.9, 0.1,
			0.1, 0.2,
		}
		out, err := NewRawOutput(boxes, []int{2, 1, 1, 4}, scores, []int{2, 1, 2})
		require.NoError(t, err)

		groups, err := Decode(out, 0.4)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, 1, groups[0].Len())
		assert.Equal(t, images.Rect{X1: 0.1, Y1: 0.1, X2: 0.2, Y2: 0.2}, groups[0][0][0].Box)
		assert.Equal(t, 0, groups[1].Len())
		assert.Len(t, groups[1], 2)
	})
}

func TestRawOutput_ShapeErrors(t *testing.T) {
	tests := []struct {
		name       string
		boxes      []float32
		boxShape   []int
		scores     []float32
		scoreShape []int
	}{
		{
			name:       "anchor counts differ",
			boxes:      make([]float32, 8),
			boxShape:   []int{1, 2, 1, 4},
			scores:     make([]float32, 3),
			scoreShape: []int{1, 3, 1},
		},
		{
			name:       "batch sizes differ",
			boxes:      make([]float32, 8),
			boxShape:   []int{2, 1, 1, 4},
			scores:     make([]float32, 2),
			scoreShape: []int{1, 1, 2},
		},
		{
			name:       "box coordinates are not four",
			boxes:      make([]float32, 3),
			boxShape:   []int{1, 1, 1, 3},
			scores:     make([]float32, 1),
			scoreShape: []int{1, 1, 1},
		},
		{
			name:       "scores rank is wrong",
			boxes:      make([]float32, 4),
			boxShape:   []int{1, 1, 1, 4},
			scores:     make([]float32, 2),
			scoreShape: []int{1, 2},
		},
		{
			name:       "backing shorter than shape",
			boxes:      make([]float32, 7),
			boxShape:   []int{1, 2, 1, 4},
			scores:     make([]float32, 2),
			scoreShape: []int{1, 2, 1},
		},
		{
			name:       "zero dimension",
			boxes:      []float32{},
			boxShape:   []int{1, 0, 1, 4},
			scores:     []float32{},
			scoreShape: []int{1, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRawOutput(tt.boxes, tt.boxShape, tt.scores, tt.scoreShape)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
		})
	}

	t.Run("nil tensors", func(t *testing.T) {
		_, err := Decode(RawOutput{}, 0.4)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})

	t.Run("non float32 tensors", func(t *testing.T) {
		out := RawOutput{
			Boxes:  tensor.New(tensor.WithShape(1, 1, 1, 4), tensor.WithBacking([]float64{0, 0, 1, 1})),
			Scores: tensor.New(tensor.WithShape(1, 1, 1), tensor.WithBacking([]float32{0.5})),
		}
		_, err := Decode(out, 0.4)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})

	t.Run("unexpected class count", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NumClasses = 80
		pp := newPostProcessor(t, cfg)

		_, err := pp.Process(rawOutput(t, anchor{box: images.Rect{X2: 1, Y2: 1}, scores: []float32{0.9, 0.1}}))
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "bounds are inclusive", cfg: Config{ConfidenceThreshold: 0, IoUThreshold: 1}},
		{name: "negative confidence", cfg: Config{ConfidenceThreshold: -0.1, IoUThreshold: 0.5}, want: ErrInvalidThreshold},
		{name: "confidence above one", cfg: Config{ConfidenceThreshold: 1.5, IoUThreshold: 0.5}, want: ErrInvalidThreshold},
		{name: "negative iou", cfg: Config{ConfidenceThreshold: 0.4, IoUThreshold: -1}, want: ErrInvalidThreshold},
		{
			name: "NaN iou",
			cfg:  Config{ConfidenceThreshold: 0.4, IoUThreshold: float32(math.NaN())},
			want: ErrInvalidThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			_, err = NewPostProcessor(tt.cfg)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("negative workers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NumWorkers = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestNMS(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		keep := NMS(nil, nil, 0.5)
		assert.NotNil(t, keep)
		assert.Empty(t, keep)
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		boxes := []images.Rect{
			{X1: 0, Y1: 0, X2: 1, Y2: 1},
			{X1: 0, Y1: 0, X2: 1, Y2: 0.5},
		}
		// IoU is exactly 0.5.
		assert.Equal(t, []int{0, 1}, NMS(boxes, []float32{0.9, 0.8}, 0.5))
		assert.Equal(t, []int{0}, NMS(boxes, []float32{0.9, 0.8}, 0.49))
	})

	t.Run("zero area boxes never overlap", func(t *testing.T) {
		boxes := []images.Rect{
			{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.5},
			{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.5},
		}
		assert.Equal(t, []int{0, 1}, NMS(boxes, []float32{0.9, 0.9}, 0))
	})

	t.Run("kept order is score descending", func(t *testing.T) {
		boxes := []images.Rect{
			{X1: 0, Y1: 0, X2: 0.1, Y2: 0.1},
			{X1: 0.2, Y1: 0.2, X2: 0.3, Y2: 0.3},
			{X1: 0.4, Y1: 0.4, X2: 0.5, Y2: 0.5},
		}
		assert.Equal(t, []int{1, 2, 0}, NMS(boxes, []float32{0.5, 0.9, 0.7}, 0.5))
	})

	t.Run("suppressed boxes do not suppress others", func(t *testing.T) {
		boxes := []images.Rect{
			{X1: 0, Y1: 0, X2: 0.4, Y2: 0.4},
			{X1: 0.1, Y1: 0, X2: 0.5, Y2: 0.4},
			{X1: 0.2, Y1: 0, X2: 0.6, Y2: 0.4},
		}
		// 0-1 and 1-2 overlap at 0.6; 0-2 at 0.33.
		assert.Equal(t, []int{0, 2}, NMS(boxes, []float32{0.9, 0.8, 0.7}, 0.5))
	})

	t.Run("length mismatch panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NMS([]images.Rect{{}}, nil, 0.5)
		})
	})
}

func randomCandidates(r *rand.Rand, n, classes int) []anchor {
	anchors := make([]anchor, n)
	for i := range anchors {
		x, y := r.Float32()*0.8, r.Float32()*0.8
		w, h := 0.05+r.Float32()*0.2, 0.05+r.Float32()*0.2
		scores := make([]float32, classes)
		for c := range scores {
			// Quantised so that ties occur.
			scores[c] = float32(r.Intn(20)) / 20
		}
		anchors[i] = anchor{
			box:    images.Rect{X1: x, Y1: y, X2: x + w, Y2: y + h},
			scores: scores,
		}
	}
	return anchors
}

func TestProcess_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := range 20 {
		cfg := Config{
			ConfidenceThreshold: float32(r.Intn(10)) / 10,
			IoUThreshold:        0.2 + float32(r.Intn(7))/10,
			NumWorkers:          1,
		}
		anchors := randomCandidates(r, 60, 4)
		out := rawOutput(t, anchors...)

		sequential := newPostProcessor(t, cfg)
		got, err := sequential.Process(out)
		require.NoError(t, err, "round %d", round)
		detections := got[0]

		// Strict confidence and no same-class overlap above the threshold.
		for i, d := range detections {
			assert.Greater(t, d.Confidence, cfg.ConfidenceThreshold)
			assert.Equal(t, d.Confidence, d.ClassConfidence)
			for _, o := range detections[i+1:] {
				if o.ClassID == d.ClassID {
					assert.LessOrEqual(t, images.CalculateIoU(d.Box, o.Box), cfg.IoUThreshold)
				}
			}
		}

		// Class ids never decrease.
		for i := 1; i < len(detections); i++ {
			assert.LessOrEqual(t, detections[i-1].ClassID, detections[i].ClassID)
		}

		// Idempotence per class.
		byClass := map[int][]int{}
		for i, d := range detections {
			byClass[d.ClassID] = append(byClass[d.ClassID], i)
		}
		for _, idx := range byClass {
			boxes := make([]images.Rect, len(idx))
			scores := make([]float32, len(idx))
			for j, i := range idx {
				boxes[j] = detections[i].Box
				scores[j] = detections[i].Confidence
			}
			keep := NMS(boxes, scores, cfg.IoUThreshold)
			assert.ElementsMatch(t, keepAll(len(idx)), keep)
		}

		// Parallel fan-out and repeated runs match bit for bit.
		cfg.NumWorkers = 3
		parallel := newPostProcessor(t, cfg)
		again, err := parallel.Process(out)
		require.NoError(t, err)
		assert.Equal(t, got, again)

		// Running each class on its own gives the same set.
		groups, err := Decode(out, cfg.ConfidenceThreshold)
		require.NoError(t, err)
		var perClass DetectionList
		for c := len(groups[0]) - 1; c >= 0; c-- {
			perClass = append(perClass, ApplyNMS(groups[0][c], cfg.IoUThreshold)...)
		}
		assert.ElementsMatch(t, detections, perClass)
	}
}

func keepAll(n int) []int {
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return all
}

func TestProcess_Profiler(t *testing.T) {
	p := profiler.New(profiler.ProfilingOptions{})
	pp := newPostProcessor(t, DefaultConfig(), WithProfiler(p))

	_, err := pp.Process(rawOutput(t, anchor{box: images.Rect{X2: 0.5, Y2: 0.5}, scores: []float32{0.9}}))
	require.NoError(t, err)

	for _, name := range []string{OperationDecode, OperationNMS, OperationTotal} {
		stats, ok := p.Operation(name)
		require.True(t, ok, name)
		assert.Equal(t, int64(1), stats.Count, name)
	}
}

func TestProcess_DebugLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	pp, err := NewPostProcessor(DefaultConfig(), WithLogger(logger))
	require.NoError(t, err)

	_, err = pp.Process(rawOutput(t, anchor{box: images.Rect{X2: 0.5, Y2: 0.5}, scores: []float32{0.9}}))
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "post-processed batch", entry.Message)
	assert.Equal(t, 1, entry.Data["anchors"])
}

func TestProcessContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pp := newPostProcessor(t, DefaultConfig())
	_, err := pp.ProcessContext(ctx, rawOutput(t, anchor{box: images.Rect{X2: 0.5, Y2: 0.5}, scores: []float32{0.9}}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetection_Values(t *testing.T) {
	d := Detection{
		Box:             images.Rect{X1: 0.1, Y1: 0.2, X2: 0.3, Y2: 0.4},
		Confidence:      0.9,
		ClassConfidence: 0.9,
		ClassID:         3,
	}
	assert.Equal(t, [7]float32{0.1, 0.2, 0.3, 0.4, 0.9, 0.9, 3}, d.Values())
}
