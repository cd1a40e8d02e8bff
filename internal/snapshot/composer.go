// Package snapshot composes annotated stills of detected motion and
// persists them.
package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"

	"github.com/xydrolase/mamie-kinect-monitor/internal/camera"
	"github.com/xydrolase/mamie-kinect-monitor/internal/motion"
)

const (
	textX = 30
	// textInset is the distance of the text baseline from the bottom edge.
	textInset = 30
)

// Composer builds the still saved for a snapshot.
type Composer struct {
	Source   camera.FrameSource
	Location *time.Location
}

// NewComposer returns a Composer that captures fresh frames from src and
// prints timestamps in loc.
func NewComposer(src camera.FrameSource, loc *time.Location) *Composer {
	if loc == nil {
		loc = time.Local
	}
	return &Composer{Source: src, Location: loc}
}

// Compose returns the annotated image for a snapshot taken at ts.
//
// When snapshots use the motion sensor and w is primed, the two frames of
// the cycle are stacked with the later one on top and regions are
// outlined in both halves. Otherwise a fresh frame is captured from the
// snapshot sensor; w may be nil in that case.
func (c *Composer) Compose(w *motion.Window, cfg motion.Config, ts time.Time, regions ...motion.Region) (*image.NRGBA, error) {
	var (
		snap *image.NRGBA
		yoff int
	)
	if cfg.SnapshotSensor == cfg.MotionSensor && w.Primed() {
		top, bottom := w.Prev(), w.Curr()
		h := top.Bounds().Dy()
		snap = imaging.New(top.Bounds().Dx(), h+bottom.Bounds().Dy(), color.Black)
		snap = imaging.Paste(snap, top, image.Pt(0, 0))
		snap = imaging.Paste(snap, bottom, image.Pt(0, h))
		drawRegions(snap, regions, 0, h)
		yoff = snap.Bounds().Dy() - textInset
	} else {
		img, err := c.Source.CaptureStill(cfg.SnapshotSensor)
		if err != nil {
			return nil, fmt.Errorf("capture %s still: %w", cfg.SnapshotSensor, err)
		}
		snap = imaging.Clone(img)
		yoff = snap.Bounds().Dy() - textInset
	}

	drawText(snap, textX, yoff, ts.In(c.Location).Format(TimestampLayout), textColor)
	return snap, nil
}
