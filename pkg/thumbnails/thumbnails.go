// Package thumbnails renders preview images for archived charts from the
// raw bytes of the remote PNG export.
package thumbnails

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

const subdir = "thumbnails"

type Pipeline struct {
	mediaDir    string
	targetWidth int
}

func NewPipeline(mediaDir string, targetWidth int) *Pipeline {
	return &Pipeline{
		mediaDir:    mediaDir,
		targetWidth: targetWidth,
	}
}

// Filename returns the deterministic thumbnail filename for a chart.
func Filename(chartID string) string {
	return "thumbnail_" + chartID + ".png"
}

// RelativePath returns the thumbnail reference stored on the chart row,
// relative to the media directory.
func RelativePath(chartID string) string {
	return filepath.Join(subdir, Filename(chartID))
}

func (p *Pipeline) absolutePath(chartID string) string {
	return filepath.Join(p.mediaDir, subdir, Filename(chartID))
}

// Generate decodes the exported image, scales it to the target width while
// preserving the aspect ratio, and writes it as a PNG to the deterministic
// per-chart path. It returns the relative path to store on the chart row.
func (p *Pipeline) Generate(chartID string, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("export returned no image data")
	}

	var src image.Image
	var err error
	mtype := mimetype.Detect(raw)
	switch mtype.String() {
	case "image/png":
		src, err = png.Decode(bytes.NewReader(raw))
	case "image/jpeg":
		src, err = jpeg.Decode(bytes.NewReader(raw))
	default:
		return "", errors.Errorf("unexpected export mime type %s", mtype.String())
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to decode export image")
	}

	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()
	if srcW == 0 || srcH == 0 {
		return "", errors.New("export image has no pixels")
	}

	targetW := p.targetWidth
	targetH := srcH * targetW / srcW
	if targetH < 1 {
		targetH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, srcBounds, draw.Over, nil)

	path := p.absolutePath(chartID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create thumbnail directory")
	}

	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to create thumbnail file")
	}
	defer file.Close()

	if err := png.Encode(file, dst); err != nil {
		return "", errors.Wrap(err, "failed to encode thumbnail")
	}

	return RelativePath(chartID), nil
}

// Remove deletes a chart's thumbnail file. A file that is already gone is
// not an error.
func (p *Pipeline) Remove(chartID string) error {
	err := os.Remove(p.absolutePath(chartID))
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}
