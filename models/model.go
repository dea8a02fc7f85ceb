// Package models - Detection models and their class label sets.
package models

// ClassStyle identifies the naming convention / dataset of a label set.
type ClassStyle string

const (
	// ClassStyleCOCO is the 80 COCO classes, zero-based, no background.
	ClassStyleCOCO ClassStyle = "coco"
	// ClassStyleVOC is the 20 Pascal VOC classes, zero-based, no background.
	ClassStyleVOC ClassStyle = "voc"
	// ClassStyleCustom is a label set read from a names file.
	ClassStyleCustom ClassStyle = "custom"
)
