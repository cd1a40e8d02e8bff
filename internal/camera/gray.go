package camera

import (
	"image"
	"math"

	"github.com/disintegration/gift"
)

var grayscale = gift.New(gift.Grayscale())

// ToGray converts img to a single-channel frame. YCbCr frames reuse their
// luma plane directly.
func ToGray(img image.Image) *image.Gray {
	switch src := img.(type) {
	case *image.Gray:
		return src
	case *image.YCbCr:
		b := src.Bounds()
		dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			off := src.YOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], src.Y[off:off+b.Dx()])
		}
		return dst
	}
	dst := image.NewGray(grayscale.Bounds(img.Bounds()))
	grayscale.Draw(dst, img)
	return dst
}

// Equalize spreads the intensity histogram of src over the full 0-255 range
// and returns a new frame. A constant frame is returned unchanged.
func Equalize(src *image.Gray) *image.Gray {
	b := src.Bounds()
	total := b.Dx() * b.Dy()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if total == 0 {
		return dst
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, y):]
		for _, v := range row[:b.Dx()] {
			hist[v]++
		}
	}

	first := 0
	for hist[first] == 0 {
		first++
	}

	var lut [256]uint8
	if hist[first] == total {
		for i := range lut {
			lut[i] = uint8(first)
		}
	} else {
		scale := 255.0 / float64(total-hist[first])
		sum := 0
		for i := first + 1; i < 256; i++ {
			sum += hist[i]
			v := math.Round(float64(sum) * scale)
			if v > 255 {
				v = 255
			}
			lut[i] = uint8(v)
		}
	}

	for y := 0; y < b.Dy(); y++ {
		srow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		drow := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			drow[x] = lut[srow[x]]
		}
	}
	return dst
}
