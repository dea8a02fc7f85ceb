package video

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/video-detect/models/postprocess"
)

// FrameRecord is one line of the detections file.
type FrameRecord struct {
	Frame int `json:"frame"`
	// Detections holds [x1, y1, x2, y2, confidence, class confidence, class id] rows.
	Detections [][7]float32 `json:"detections"`
}

// NewFrameRecord converts the detections of a frame to a record.
func NewFrameRecord(frame int, dets postprocess.DetectionList) FrameRecord {
	rows := make([][7]float32, len(dets))
	for i, d := range dets {
		rows[i] = d.Values()
	}
	return FrameRecord{Frame: frame, Detections: rows}
}

// DetectionSink writes one JSON object per frame.
type DetectionSink struct {
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// NewDetectionSink writes records to w. Close flushes but does not close w.
func NewDetectionSink(w io.Writer) *DetectionSink {
	buf := bufio.NewWriter(w)
	return &DetectionSink{buf: buf, enc: json.NewEncoder(buf)}
}

// CreateDetectionSink creates (or truncates) the file at path.
func CreateDetectionSink(path string) (*DetectionSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "error creating detections file")
	}
	s := NewDetectionSink(f)
	s.closer = f
	return s, nil
}

// Write appends the detections of one frame.
func (s *DetectionSink) Write(frame int, dets postprocess.DetectionList) error {
	if err := s.enc.Encode(NewFrameRecord(frame, dets)); err != nil {
		return errors.Wrapf(err, "error writing detections of frame %d", frame)
	}
	return nil
}

// Close flushes buffered records and closes the file the sink created.
func (s *DetectionSink) Close() error {
	err := s.buf.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return errors.Wrap(err, "error closing detections file")
}
