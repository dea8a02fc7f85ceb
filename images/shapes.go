// Package images - Geometry for normalised detection boxes.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned box in normalised image coordinates.
//
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner, each expressed as a
// fraction of the image width or height (usually within [0, 1]).
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, or 0 for an inverted box.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the box, or 0 for an inverted box.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box. Inverted and degenerate boxes have zero area.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// String formats the box for logs.
func (r Rect) String() string {
	return fmt.Sprintf("(%.4f, %.4f), (%.4f, %.4f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU is the area shared by both boxes divided by the area covered by either of them:
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the boxes are identical and 0.0 means they do not overlap.
//
// The intersection rectangle starts at the maximum of the two top-left corners and ends at the
// minimum of the two bottom-right corners. When its width or height is zero or negative the
// boxes do not overlap. The union uses inclusion-exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// A box of zero area never overlaps anything, so the result is 0 whenever either box is
// degenerate, even when it lies inside the other box.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 0.5, Y2: 0.5}
//	b := Rect{X1: 0.25, Y1: 0.25, X2: 0.75, Y2: 0.75}
//
//	iou := CalculateIoU(a, b) // 0.0625 / (0.25 + 0.25 - 0.0625) ≈ 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	areaR := r.Area()
	areaO := o.Area()
	if areaR <= 0 || areaO <= 0 {
		return 0
	}

	interW := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	interH := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	unionArea := areaR + areaO - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}
