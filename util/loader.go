// Package util - Helpers for reading frame sequences from disk.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile represents an image file holding one video frame.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number of the image file.
	Frame int
}

// Read returns the raw bytes of the image file.
func (f ImageFile) Read() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading frame %d", f.Frame)
	}
	return data, nil
}

// imageExtensions are the frame file types gocv can decode.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// FrameNumber parses the frame number of a file named "frame-<n>.<ext>" or "<n>.<ext>".
func FrameNumber(name string) (int, error) {
	ext := filepath.Ext(name)
	base := strings.TrimPrefix(strings.TrimSuffix(name, ext), "frame-")
	frame, err := strconv.Atoi(base)
	if err != nil {
		return 0, errors.Errorf("file %q is not named frame-<n>%s", name, ext)
	}
	return frame, nil
}

// ListDirectoryImageFiles lists the image files of a directory ordered by frame number. File
// contents are not read.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The frames in ascending frame order.
// - error: Error if the directory cannot be read or a file name carries no frame number.
func ListDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "error listing frames")
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		frame, err := FrameNumber(entry.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, ImageFile{
			Path:  filepath.Join(dir, entry.Name()),
			Frame: frame,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})

	return files, nil
}
