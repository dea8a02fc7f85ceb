package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvr-ai/video-detect/images"
	"github.com/nvr-ai/video-detect/models"
	"github.com/nvr-ai/video-detect/models/postprocess"
)

func TestColor(t *testing.T) {
	tests := []struct {
		name       string
		classID    int
		numClasses int
		want       color.RGBA
	}{
		// offset 0: palette[0] = (B1, G0, R1).
		{name: "class 0", classID: 0, numClasses: 80, want: color.RGBA{R: 255, G: 0, B: 255, A: 255}},
		// 123457 % 2 = 1, ratio 2.5: halfway between (0,1,1) and (0,1,0).
		{name: "odd class of two", classID: 1, numClasses: 2, want: color.RGBA{R: 127, G: 255, B: 0, A: 255}},
		{name: "no classes", classID: 3, numClasses: 0, want: Red},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Color(tt.classID, tt.numClasses))
		})
	}
}

func TestColor_Stable(t *testing.T) {
	for id := 0; id < 80; id++ {
		assert.Equal(t, Color(id, 80), Color(id, 80))
		assert.Equal(t, uint8(255), Color(id, 80).A)
	}
}

func TestPixelRect(t *testing.T) {
	r := PixelRect(images.Rect{X1: 0.1, Y1: 0.25, X2: 0.999, Y2: 0.5}, 640, 480)
	assert.Equal(t, image.Rect(64, 120, 639, 240), r)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "person", Label(models.COCONames, 0))
	assert.Equal(t, "class 80", Label(models.COCONames, 80))
	assert.Equal(t, "class 2", Label(nil, 2))
}

func TestFPSText(t *testing.T) {
	assert.Equal(t, "Input FPS: 30 | Inference FPS: 12.35", FPSText(30, 12.345678))
}

func TestBoxes(t *testing.T) {
	dets := postprocess.DetectionList{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 0.5, Y2: 0.5}, Confidence: 0.9, ClassConfidence: 0.9, ClassID: 0},
		{Box: images.Rect{X1: 0.5, Y1: 0.5, X2: 1, Y2: 1}, Confidence: 0.8, ClassConfidence: 0.8, ClassID: 99},
	}

	t.Run("with names", func(t *testing.T) {
		boxes := Boxes(dets, models.COCONames, 100, 200)
		assert.Equal(t, []Box{
			{Rect: image.Rect(0, 0, 50, 100), Color: Color(0, 80), Label: "person"},
			{Rect: image.Rect(50, 100, 100, 200), Color: Color(99, 80), Label: "class 99"},
		}, boxes)
	})

	t.Run("without names", func(t *testing.T) {
		boxes := Boxes(dets, nil, 100, 200)
		for _, b := range boxes {
			assert.Equal(t, Red, b.Color)
			assert.Empty(t, b.Label)
		}
	})
}
