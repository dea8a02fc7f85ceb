package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// RawOutput is the pair of tensors produced by the network for one batch.
//
// Boxes is shaped [batch, anchors, 1, 4] holding normalised x1, y1, x2, y2 and Scores is shaped
// [batch, anchors, classes]. Both hold float32 values.
type RawOutput struct {
	Boxes  *tensor.Dense
	Scores *tensor.Dense
}

// NewRawOutput wraps flat network outputs into tensors after checking that every backing slice
// holds exactly as many values as its shape describes.
//
// Arguments:
//   - boxes: The flat box values.
//   - boxShape: The shape of the box tensor, [batch, anchors, 1, 4].
//   - scores: The flat class confidences.
//   - scoreShape: The shape of the score tensor, [batch, anchors, classes].
//
// Returns:
//   - RawOutput: The wrapped tensors (the slices are used as backing, not copied).
//   - error: ErrShapeMismatch (wrapped) if the data does not fit the shapes.
func NewRawOutput(boxes []float32, boxShape []int, scores []float32, scoreShape []int) (RawOutput, error) {
	if err := checkBacking("boxes", len(boxes), boxShape); err != nil {
		return RawOutput{}, err
	}
	if err := checkBacking("scores", len(scores), scoreShape); err != nil {
		return RawOutput{}, err
	}

	out := RawOutput{
		Boxes:  tensor.New(tensor.WithShape(boxShape...), tensor.WithBacking(boxes)),
		Scores: tensor.New(tensor.WithShape(scoreShape...), tensor.WithBacking(scores)),
	}
	if _, err := out.Dims(); err != nil {
		return RawOutput{}, err
	}
	return out, nil
}

func checkBacking(name string, n int, shape []int) error {
	if len(shape) == 0 {
		return errors.Wrapf(ErrShapeMismatch, "%s: empty shape", name)
	}
	size := 1
	for _, d := range shape {
		if d <= 0 {
			return errors.Wrapf(ErrShapeMismatch, "%s: dimension %d in shape %v", name, d, shape)
		}
		size *= d
	}
	if size != n {
		return errors.Wrapf(ErrShapeMismatch, "%s: shape %v needs %d values, got %d", name, shape, size, n)
	}
	return nil
}

// Dims describes the validated dimensions of a RawOutput.
type Dims struct {
	Batch   int
	Anchors int
	Classes int
}

// Dims validates the tensors against each other and returns their dimensions.
//
// Returns:
//   - Dims: The batch, anchor, and class counts.
//   - error: ErrShapeMismatch (wrapped) describing the first inconsistency found.
func (o RawOutput) Dims() (Dims, error) {
	if o.Boxes == nil || o.Scores == nil {
		return Dims{}, errors.Wrap(ErrShapeMismatch, "boxes and scores tensors are required")
	}
	if o.Boxes.Dtype() != tensor.Float32 {
		return Dims{}, errors.Wrapf(ErrShapeMismatch, "boxes: expected float32, got %v", o.Boxes.Dtype())
	}
	if o.Scores.Dtype() != tensor.Float32 {
		return Dims{}, errors.Wrapf(ErrShapeMismatch, "scores: expected float32, got %v", o.Scores.Dtype())
	}

	bs := o.Boxes.Shape()
	if len(bs) != 4 || bs[2] != 1 || bs[3] != 4 {
		return Dims{}, errors.Wrapf(ErrShapeMismatch, "boxes: expected [batch, anchors, 1, 4], got %v", bs)
	}
	ss := o.Scores.Shape()
	if len(ss) != 3 {
		return Dims{}, errors.Wrapf(ErrShapeMismatch, "scores: expected [batch, anchors, classes], got %v", ss)
	}
	if bs[0] != ss[0] {
		return Dims{}, errors.Wrapf(ErrShapeMismatch, "batch size differs: boxes %d, scores %d", bs[0], ss[0])
	}
	if bs[1] != ss[1] {
		return Dims{}, errors.Wrapf(ErrShapeMismatch, "anchor count differs: boxes %d, scores %d", bs[1], ss[1])
	}
	if ss[2] < 1 {
		return Dims{}, errors.Wrapf(ErrShapeMismatch, "scores: no classes in %v", ss)
	}

	return Dims{Batch: bs[0], Anchors: bs[1], Classes: ss[2]}, nil
}

// float32s returns the backing values of a tensor in row-major order.
func float32s(name string, t *tensor.Dense) ([]float32, error) {
	if t.IsMaterializable() {
		m, ok := t.Materialize().(*tensor.Dense)
		if !ok {
			return nil, errors.Wrapf(ErrShapeMismatch, "%s: cannot materialise view", name)
		}
		t = m
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: backing is %T, not []float32", name, t.Data())
	}
	if len(data) != t.Shape().TotalSize() {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: %d values for shape %v", name, len(data), t.Shape())
	}
	return data, nil
}
