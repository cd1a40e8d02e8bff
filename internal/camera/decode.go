package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/blackjack/webcam"
)

const (
	fmtYUYV  webcam.PixelFormat = 0x56595559
	fmtMJPEG webcam.PixelFormat = 0x47504a4d
	fmtGREY  webcam.PixelFormat = 0x59455247
)

var formatNames = map[webcam.PixelFormat]string{
	fmtYUYV:  "YUYV",
	fmtMJPEG: "MJPEG",
	fmtGREY:  "GREY",
}

var (
	dhtMarker = []byte{255, 196}
	sosMarker = []byte{255, 218}
	dht       = []byte{1, 162, 0, 0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 1, 0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 16, 0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125, 1, 2, 3, 0, 4, 17, 5, 18, 33, 49, 65, 6, 19, 81, 97, 7, 34, 113, 20, 50, 129, 145, 161, 8, 35, 66, 177, 193, 21, 82, 209, 240, 36, 51, 98, 114, 130, 9, 10, 22, 23, 24, 25, 26, 37, 38, 39, 40, 41, 42, 52, 53, 54, 55, 56, 57, 58, 67, 68, 69, 70, 71, 72, 73, 74, 83, 84, 85, 86, 87, 88, 89, 90, 99, 100, 101, 102, 103, 104, 105, 106, 115, 116, 117, 118, 119, 120, 121, 122, 131, 132, 133, 134, 135, 136, 137, 138, 146, 147, 148, 149, 150, 151, 152, 153, 154, 162, 163, 164, 165, 166, 167, 168, 169, 170, 178, 179, 180, 181, 182, 183, 184, 185, 186, 194, 195, 196, 197, 198, 199, 200, 201, 202, 210, 211, 212, 213, 214, 215, 216, 217, 218, 225, 226, 227, 228, 229, 230, 231, 232, 233, 234, 241, 242, 243, 244, 245, 246, 247, 248, 249, 250, 17, 0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 119, 0, 1, 2, 3, 17, 4, 5, 33, 49, 6, 18, 65, 81, 7, 97, 113, 19, 34, 50, 129, 8, 20, 66, 145, 161, 177, 193, 9, 35, 51, 82, 240, 21, 98, 114, 209, 10, 22, 36, 52, 225, 37, 241, 23, 24, 25, 26, 38, 39, 40, 41, 42, 53, 54, 55, 56, 57, 58, 67, 68, 69, 70, 71, 72, 73, 74, 83, 84, 85, 86, 87, 88, 89, 90, 99, 100, 101, 102, 103, 104, 105, 106, 115, 116, 117, 118, 119, 120, 121, 122, 130, 131, 132, 133, 134, 135, 136, 137, 138, 146, 147, 148, 149, 150, 151, 152, 153, 154, 162, 163, 164, 165, 166, 167, 168, 169, 170, 178, 179, 180, 181, 182, 183, 184, 185, 186, 194, 195, 196, 197, 198, 199, 200, 201, 202, 210, 211, 212, 213, 214, 215, 216, 217, 218, 226, 227, 228, 229, 230, 231, 232, 233, 234, 242, 243, 244, 245, 246, 247, 248, 249, 250}
)

// UVC motion jpeg frames omit the Huffman tables, so they are inserted
// before the start-of-scan marker. Frames that already carry a table are
// returned as they are.
func addMotionDht(frame []byte) []byte {
	if bytes.Contains(frame, dhtMarker) {
		return frame
	}
	parts := bytes.SplitN(frame, sosMarker, 2)
	if len(parts) != 2 {
		return frame
	}
	out := make([]byte, 0, len(frame)+len(dhtMarker)+len(dht))
	out = append(out, parts[0]...)
	out = append(out, dhtMarker...)
	out = append(out, dht...)
	out = append(out, sosMarker...)
	return append(out, parts[1]...)
}

// decodeFrame turns a raw driver buffer of the given format and size into
// an image. The buffer is not retained.
func decodeFrame(frame []byte, w, h int, format webcam.PixelFormat) (image.Image, error) {
	switch format {
	case fmtYUYV:
		if len(frame) < w*h*2 {
			return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(frame), w, h)
		}
		img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
		for i := range img.Cb {
			ii := i * 4
			img.Y[i*2] = frame[ii]
			img.Y[i*2+1] = frame[ii+2]
			img.Cb[i] = frame[ii+1]
			img.Cr[i] = frame[ii+3]
		}
		return img, nil
	case fmtGREY:
		if len(frame) < w*h {
			return nil, fmt.Errorf("short GREY frame: %d bytes for %dx%d", len(frame), w, h)
		}
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, frame[:w*h])
		return img, nil
	case fmtMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(addMotionDht(frame)))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg frame: %w", err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: %#x", ErrUnsupportedFormat, uint32(format))
}
