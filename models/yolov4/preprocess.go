package yolov4

import (
	"image"

	"github.com/nfnt/resize"
)

// PreProcess resizes the frame to the network input size and converts it to a normalised
// RGB tensor in CHW order.
//
// Arguments:
//   - img: The frame to prepare.
//
// Returns:
//   - The [3, height, width] tensor with values in [0, 1].
func (m *YOLOv4) PreProcess(img image.Image) []float32 {
	width, height := m.options.InputSize.X, m.options.InputSize.Y
	return ToTensor(img, width, height)
}

// ToTensor resizes img to width by height with bilinear interpolation and returns its pixels
// as RGB planes scaled to [0, 1].
func ToTensor(img image.Image, width, height int) []float32 {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		b = img.Bounds()
	}

	channelSize := width * height
	data := make([]float32, channelSize*3)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
			i++
		}
	}
	return data
}
