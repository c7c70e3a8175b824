package media

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/dkeye/AvatarCall/internal/core"
	"golang.org/x/image/draw"
)

// SnapshotFile is a camera stand-in: an external grabber keeps overwriting
// one image file, and each sample decodes its latest contents.
type SnapshotFile struct {
	Path string
	// MaxWidth scales wider frames down, keeping the aspect ratio. Zero
	// keeps the original size.
	MaxWidth int
}

// SnapshotCamera opens a SnapshotFile frame source. The file need not exist
// yet; the source stays not-ready until it does.
func SnapshotCamera(path string, maxWidth int) FrameOpener {
	return func(context.Context) (core.FrameSource, error) {
		if path == "" {
			return nil, fmt.Errorf("camera snapshot path not set")
		}
		return &SnapshotFile{Path: path, MaxWidth: maxWidth}, nil
	}
}

// Ready reports whether a non-empty frame file exists.
func (s *SnapshotFile) Ready() bool {
	fi, err := os.Stat(s.Path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

func (s *SnapshotFile) Snapshot() (image.Image, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return Scale(img, s.MaxWidth), nil
}

// Scale shrinks img to maxWidth, preserving aspect ratio. Smaller images are
// returned unchanged.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
