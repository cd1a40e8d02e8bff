package snapshot

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/xydrolase/mamie-kinect-monitor/internal/motion"
)

// TimestampLayout formats the overlay text.
const TimestampLayout = "2006-01-02 15:04:05"

var textColor = color.RGBA{255, 0, 0, 255}

// drawText writes label with its baseline at (x, y).
func drawText(img draw.Image, x, y int, label string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(label)
}

// drawBox outlines r with the given thickness, clipped to the image.
func drawBox(img draw.Image, r image.Rectangle, c color.Color, thickness int) {
	bounds := img.Bounds()
	for t := 0; t < thickness; t++ {
		box := r.Inset(-t)
		for x := box.Min.X; x < box.Max.X; x++ {
			setClipped(img, bounds, x, box.Min.Y, c)
			setClipped(img, bounds, x, box.Max.Y-1, c)
		}
		for y := box.Min.Y; y < box.Max.Y; y++ {
			setClipped(img, bounds, box.Min.X, y, c)
			setClipped(img, bounds, box.Max.X-1, y, c)
		}
	}
}

func setClipped(img draw.Image, bounds image.Rectangle, x, y int, c color.Color) {
	if image.Pt(x, y).In(bounds) {
		img.Set(x, y, c)
	}
}

// drawRegions outlines each region at every given vertical offset, one
// palette color per region.
func drawRegions(img draw.Image, regions []motion.Region, offsets ...int) {
	if len(regions) == 0 {
		return
	}
	pal := colorful.FastWarmPalette(len(regions))
	for i, r := range regions {
		for _, dy := range offsets {
			drawBox(img, r.Bounds.Add(image.Pt(0, dy)), pal[i], 2)
		}
	}
}
