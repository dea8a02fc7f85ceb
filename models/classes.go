package models

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// ClassSet ties a style to its full list of labels.
type ClassSet struct {
	// Class set identifier.
	Style ClassStyle
	// Classes that are supported and mappable, indexed by class id.
	Classes []OutputClass
}

// NewClassSet builds a class set from names ordered by class id.
func NewClassSet(style ClassStyle, names []string) *ClassSet {
	s := &ClassSet{
		Style:   style,
		Classes: make([]OutputClass, len(names)),
	}
	for i, name := range names {
		s.Classes[i] = OutputClass{Index: i, Name: name}
	}
	return s
}

// Len returns the number of classes.
func (s *ClassSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Classes)
}

// Name returns the label of a class id. ok is false when id is out of range.
func (s *ClassSet) Name(id int) (string, bool) {
	if s == nil || id < 0 || id >= len(s.Classes) {
		return "", false
	}
	return s.Classes[id].Name, true
}

// COCONames is the 80 COCO classes in the zero-based order YOLO models index into.
var COCONames = NewClassSet(ClassStyleCOCO, []string{
	"person", "bicycle", "car", "motorbike", "aeroplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "sofa", "pottedplant", "bed",
	"diningtable", "toilet", "tvmonitor", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
})

// VOCNames is the 20 Pascal VOC classes, zero-based, no background.
var VOCNames = NewClassSet(ClassStyleVOC, []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train",
	"tvmonitor",
})

// LoadClassNames reads a names file with one label per line. Surrounding whitespace is trimmed
// and blank lines are skipped.
//
// Arguments:
//   - path: The names file.
//
// Returns:
//   - *ClassSet: The labels in file order.
//   - error: An error if the file cannot be read or holds no labels.
func LoadClassNames(path string) (*ClassSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening class names")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading class names from %s", path)
	}
	if len(names) == 0 {
		return nil, errors.Errorf("no class names in %s", path)
	}

	return NewClassSet(ClassStyleCustom, names), nil
}

// DefaultNamesFile is read when the class count has no built-in labels and no names file is
// given.
const DefaultNamesFile = "data/names"

// ClassNamesFor picks the labels for a model. An explicit names file wins; otherwise 80
// classes map to COCO, 20 to VOC, and any other count to DefaultNamesFile.
//
// Arguments:
//   - numClasses: The class count of the model.
//   - path: An optional names file.
//
// Returns:
//   - *ClassSet: The labels, or nil when DefaultNamesFile does not exist. Boxes are then drawn
//     without labels.
//   - error: An error if a names file cannot be loaded or its length differs from numClasses.
func ClassNamesFor(numClasses int, path string) (*ClassSet, error) {
	switch {
	case path != "":
	case numClasses == COCONames.Len():
		return COCONames, nil
	case numClasses == VOCNames.Len():
		return VOCNames, nil
	default:
		if _, err := os.Stat(DefaultNamesFile); os.IsNotExist(err) {
			return nil, nil
		}
		path = DefaultNamesFile
	}

	set, err := LoadClassNames(path)
	if err != nil {
		return nil, err
	}
	if numClasses > 0 && set.Len() != numClasses {
		return nil, errors.Errorf("%s has %d names, model has %d classes", path, set.Len(), numClasses)
	}
	return set, nil
}
