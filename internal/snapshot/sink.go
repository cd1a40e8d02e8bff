package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/icza/mjpeg"
)

// Sink receives every saved snapshot. Upload destinations plug in here.
type Sink interface {
	Publish(s *Snapshot) error
}

// Nop is the default upload sink; it discards snapshots.
type Nop struct{}

func (Nop) Publish(*Snapshot) error { return nil }

// Archive appends snapshots to a motion-JPEG AVI. The movie takes the size
// of the first snapshot; later snapshots of another size are fitted onto a
// black canvas of that size.
type Archive struct {
	path    string
	fps     int32
	quality int

	mu     sync.Mutex
	aw     mjpeg.AviWriter
	w, h   int
	frames int
}

// NewArchive returns an archive writing to path once the first snapshot
// arrives.
func NewArchive(path string, fps int32, quality int) *Archive {
	if fps <= 0 {
		fps = 2
	}
	if quality <= 0 {
		quality = DefaultQuality
	}
	return &Archive{path: path, fps: fps, quality: quality}
}

// Publish implements Sink.
func (a *Archive) Publish(s *Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := s.Image.Bounds()
	if a.aw == nil {
		aw, err := mjpeg.New(a.path, int32(b.Dx()), int32(b.Dy()), a.fps)
		if err != nil {
			return fmt.Errorf("failed to create archive %s: %w", a.path, err)
		}
		a.aw, a.w, a.h = aw, b.Dx(), b.Dy()
	}

	frame := s.JPEG
	if b.Dx() != a.w || b.Dy() != a.h {
		canvas := imaging.New(a.w, a.h, color.Black)
		fitted := imaging.Fit(s.Image, a.w, a.h, imaging.Lanczos)
		canvas = imaging.PasteCenter(canvas, fitted)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(a.quality)); err != nil {
			return fmt.Errorf("failed to encode archive frame: %w", err)
		}
		frame = buf.Bytes()
	}

	if err := a.aw.AddFrame(frame); err != nil {
		return fmt.Errorf("failed to append archive frame: %w", err)
	}
	a.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (a *Archive) Frames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// Size returns the movie dimensions, zero before the first frame.
func (a *Archive) Size() image.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return image.Pt(a.w, a.h)
}

// Close finalizes the AVI index. It is a no-op if nothing was written.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aw == nil {
		return nil
	}
	err := a.aw.Close()
	a.aw = nil
	return err
}
