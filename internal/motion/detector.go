package motion

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/gift"
)

// DilateIterations is the number of 3x3 dilation passes applied to the
// binary mask.
const DilateIterations = 2

var (
	// ErrNotPrimed is returned when the window lacks one of its frames.
	ErrNotPrimed = errors.New("motion window not primed")

	// ErrFrameSize is returned when the window frames differ in size.
	ErrFrameSize = errors.New("frame sizes differ")
)

// Result is the outcome of one evaluation.
type Result struct {
	// Mask is the dilated binary change mask, 0 or 255 per pixel.
	Mask *image.Gray
	// Changed counts the set pixels of Mask.
	Changed int
}

// KernelSigma derives the Gaussian sigma for an odd kernel size the way
// OpenCV does when sigma is left at zero.
func KernelSigma(ksize int) float32 {
	return float32(0.3*(float64(ksize-1)*0.5-1) + 0.8)
}

// Blur smooths a frame with a Gaussian of the given kernel size. A kernel
// of 1 returns the frame unchanged.
func Blur(src *image.Gray, ksize int) *image.Gray {
	if ksize <= 1 {
		return src
	}
	g := gift.New(gift.GaussianBlur(KernelSigma(ksize)))
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// AbsDiff returns |a - b| per pixel.
func AbsDiff(a, b *image.Gray) *image.Gray {
	dst := image.NewGray(a.Bounds())
	for i, av := range a.Pix {
		bv := b.Pix[i]
		if av > bv {
			dst.Pix[i] = av - bv
		} else {
			dst.Pix[i] = bv - av
		}
	}
	return dst
}

// Or combines two difference maps with a per-pixel bitwise OR.
func Or(a, b *image.Gray) *image.Gray {
	dst := image.NewGray(a.Bounds())
	for i, av := range a.Pix {
		dst.Pix[i] = av | b.Pix[i]
	}
	return dst
}

// Binarize sets pixels above threshold to 255 and the rest to 0.
func Binarize(src *image.Gray, threshold int) *image.Gray {
	dst := image.NewGray(src.Bounds())
	for i, v := range src.Pix {
		if int(v) > threshold {
			dst.Pix[i] = 255
		}
	}
	return dst
}

// Dilate grows set regions with a 3x3 square element, iterations times.
func Dilate(src *image.Gray, iterations int) *image.Gray {
	if iterations <= 0 {
		return src
	}
	g := gift.New()
	for i := 0; i < iterations; i++ {
		g.Add(gift.Maximum(3, false))
	}
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// CountChanged counts mask pixels with a value above 1.
func CountChanged(mask *image.Gray) int {
	n := 0
	for _, v := range mask.Pix {
		if v > 1 {
			n++
		}
	}
	return n
}

// Evaluate runs the change pipeline over a primed window. Both the
// intra-cycle difference (curr against prev) and the drift since the last
// cycle (prev against baseline) contribute to the mask.
func Evaluate(w *Window, cfg Config) (Result, error) {
	if !w.Primed() {
		return Result{}, ErrNotPrimed
	}
	b := w.curr.Bounds()
	if w.prev.Bounds().Size() != b.Size() || w.baseline.Bounds().Size() != b.Size() {
		return Result{}, fmt.Errorf("%w: curr %v, prev %v, baseline %v", ErrFrameSize,
			b.Size(), w.prev.Bounds().Size(), w.baseline.Bounds().Size())
	}

	curr := normalize(Blur(w.curr, cfg.BlurKernel))
	prev := normalize(Blur(w.prev, cfg.BlurKernel))
	baseline := normalize(Blur(w.baseline, cfg.BlurKernel))

	delta := Or(AbsDiff(curr, prev), AbsDiff(prev, baseline))
	mask := Dilate(Binarize(delta, cfg.DiffThreshold), DilateIterations)

	return Result{Mask: mask, Changed: CountChanged(mask)}, nil
}

// normalize returns img with origin (0,0) and a tight stride so the
// pixel-wise helpers can index Pix directly.
func normalize(img *image.Gray) *image.Gray {
	b := img.Bounds()
	if b.Min == (image.Point{}) && img.Stride == b.Dx() {
		return img
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return dst
}
