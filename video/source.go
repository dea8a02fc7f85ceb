// Package video - Reads frames, runs detection, and writes the annotated video.
package video

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/video-detect/util"
)

// FrameSource yields BGR frames.
type FrameSource interface {
	// Read fills dst with the next frame. ok is false at the end of the input.
	Read(dst *gocv.Mat) (ok bool, err error)
	// Size is the frame size in pixels.
	Size() image.Point
	// FPS is the nominal frame rate.
	FPS() float64
	Close() error
}

type captureSource struct {
	capture *gocv.VideoCapture
	size    image.Point
	fps     float64
}

// OpenVideo opens a video file.
func OpenVideo(path string) (FrameSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening video %s", path)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("error reading video file %s", path)
	}

	return &captureSource{
		capture: capture,
		size: image.Pt(
			int(capture.Get(gocv.VideoCaptureFrameWidth)),
			int(capture.Get(gocv.VideoCaptureFrameHeight)),
		),
		fps: capture.Get(gocv.VideoCaptureFPS),
	}, nil
}

func (s *captureSource) Read(dst *gocv.Mat) (bool, error) {
	if !s.capture.Read(dst) || dst.Empty() {
		return false, nil
	}
	return true, nil
}

func (s *captureSource) Size() image.Point { return s.size }

func (s *captureSource) FPS() float64 { return s.fps }

func (s *captureSource) Close() error {
	return s.capture.Close()
}

type directorySource struct {
	files []util.ImageFile
	next  int
	size  image.Point
	fps   float64
}

// OpenFrameDirectory reads the numbered image files of a directory as a video. The frame size
// is taken from the first frame.
func OpenFrameDirectory(dir string, fps float64) (FrameSource, error) {
	files, err := util.ListDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no frames in %s", dir)
	}

	first, err := decodeFrame(files[0])
	if err != nil {
		return nil, err
	}
	size := image.Pt(first.Cols(), first.Rows())
	first.Close()

	return &directorySource{files: files, size: size, fps: fps}, nil
}

func (s *directorySource) Read(dst *gocv.Mat) (bool, error) {
	if s.next >= len(s.files) {
		return false, nil
	}
	frame, err := decodeFrame(s.files[s.next])
	if err != nil {
		return false, err
	}
	defer frame.Close()
	s.next++

	frame.CopyTo(dst)
	return true, nil
}

func (s *directorySource) Size() image.Point { return s.size }

func (s *directorySource) FPS() float64 { return s.fps }

func (s *directorySource) Close() error { return nil }

func decodeFrame(f util.ImageFile) (gocv.Mat, error) {
	data, err := f.Read()
	if err != nil {
		return gocv.Mat{}, err
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, errors.Wrapf(err, "error decoding %s", f.Path)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, errors.Errorf("error decoding %s", f.Path)
	}
	return mat, nil
}
