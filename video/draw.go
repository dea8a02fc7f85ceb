package video

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/video-detect/models"
	"github.com/nvr-ai/video-detect/models/postprocess"
	"github.com/nvr-ai/video-detect/render"
)

// DrawDetections draws each detection's box and, when names are known, its label at the top
// left corner of the box.
func DrawDetections(mat *gocv.Mat, dets postprocess.DetectionList, names *models.ClassSet) {
	for _, b := range render.Boxes(dets, names, mat.Cols(), mat.Rows()) {
		if b.Label != "" {
			gocv.PutText(mat, b.Label, b.Rect.Min, gocv.FontHersheySimplex, 1.2, b.Color, 1)
		}
		gocv.Rectangle(mat, b.Rect, b.Color, 1)
	}
}

// DrawFPS overlays the input and inference frame rates.
func DrawFPS(mat *gocv.Mat, inputFPS int, inferenceFPS float64) {
	gocv.PutText(mat, render.FPSText(inputFPS, inferenceFPS), image.Pt(50, 50),
		gocv.FontHersheyComplex, 1, render.FPSColor, 2)
}
