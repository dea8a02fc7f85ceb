// Package render - Maps normalised detections onto frames: pixel boxes, labels and colours.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/video-detect/images"
	"github.com/nvr-ai/video-detect/models"
	"github.com/nvr-ai/video-detect/models/postprocess"
)

// palette is interpolated to spread class colours; each entry is a (B, G, R) triple in [0, 1].
var palette = [6][3]float32{
	{1, 0, 1},
	{0, 0, 1},
	{0, 1, 1},
	{0, 1, 0},
	{1, 1, 0},
	{1, 0, 0},
}

// Red is used for boxes when no class names are known.
var Red = color.RGBA{R: 255, A: 255}

// FPSColor is the colour of the frame rate overlay.
var FPSColor = color.RGBA{G: 255, A: 255}

// Color returns a stable colour for a class.
//
// The class id is scattered over the palette with a large multiplier so that neighbouring ids
// get distinct colours.
//
// Arguments:
//   - classID: The class of the detection.
//   - numClasses: The number of classes of the label set.
//
// Returns:
//   - color.RGBA: The colour; Red when numClasses is not positive.
func Color(classID, numClasses int) color.RGBA {
	if numClasses <= 0 {
		return Red
	}
	offset := (classID * 123457) % numClasses
	if offset < 0 {
		offset += numClasses
	}
	return color.RGBA{
		R: channel(2, offset, numClasses),
		G: channel(1, offset, numClasses),
		B: channel(0, offset, numClasses),
		A: 255,
	}
}

func channel(c, x, max int) uint8 {
	ratio := float32(x) / float32(max) * 5
	i := int(math32.Floor(ratio))
	j := int(math32.Ceil(ratio))
	ratio -= float32(i)
	r := (1-ratio)*palette[i][c] + ratio*palette[j][c]
	return uint8(r * 255)
}

// PixelRect maps a normalised box onto a frame of the given size. Coordinates are truncated
// toward zero.
func PixelRect(box images.Rect, width, height int) image.Rectangle {
	return image.Rectangle{
		Min: image.Point{X: int(box.X1 * float32(width)), Y: int(box.Y1 * float32(height))},
		Max: image.Point{X: int(box.X2 * float32(width)), Y: int(box.Y2 * float32(height))},
	}
}

// Label returns the class name, or "class <id>" when names has no entry for it.
func Label(names *models.ClassSet, classID int) string {
	if name, ok := names.Name(classID); ok {
		return name
	}
	return fmt.Sprintf("class %d", classID)
}

// FPSText formats the frame rate overlay.
func FPSText(inputFPS int, inferenceFPS float64) string {
	return fmt.Sprintf("Input FPS: %d | Inference FPS: %.2f", inputFPS, inferenceFPS)
}

// Box is a detection ready to be drawn in pixel space.
type Box struct {
	Rect  image.Rectangle
	Color color.RGBA
	// Label is empty when no class names are known.
	Label string
}

// Boxes maps the detections of a frame to drawable boxes.
//
// Arguments:
//   - dets: The detections with normalised coordinates.
//   - names: The class names; nil draws unlabeled red boxes.
//   - width: The frame width in pixels.
//   - height: The frame height in pixels.
//
// Returns:
//   - []Box: One box per detection, in detection order.
func Boxes(dets postprocess.DetectionList, names *models.ClassSet, width, height int) []Box {
	out := make([]Box, 0, len(dets))
	for _, d := range dets {
		b := Box{
			Rect:  PixelRect(d.Box, width, height),
			Color: Red,
		}
		if names.Len() > 0 {
			b.Color = Color(d.ClassID, names.Len())
			b.Label = Label(names, d.ClassID)
		}
		out = append(out, b)
	}
	return out
}
