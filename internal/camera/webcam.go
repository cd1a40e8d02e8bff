package camera

import (
	"fmt"
	"image"
	"sort"
	"strconv"
	"strings"

	"github.com/blackjack/webcam"

	"github.com/xydrolase/mamie-kinect-monitor/internal/monitoring"
	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
)

// Options configures a V4L2 frame source.
type Options struct {
	// Device is the video device node, e.g. /dev/video0.
	Device string
	// Size is "WxH" or a driver size string; empty selects the largest.
	Size string
	// Timeout is the per-wait frame timeout in seconds.
	Timeout uint32
	// MaxTimeouts bounds consecutive timeouts before a capture fails.
	MaxTimeouts int
}

// Pixel formats tried for each sensor, in order of preference. The Kinect
// exposes its infrared camera as 8-bit GREY on the same node as the video
// camera.
var modeFormats = map[sensor.Mode][]webcam.PixelFormat{
	sensor.IR:  {fmtGREY},
	sensor.RGB: {fmtYUYV, fmtMJPEG},
}

type byArea []webcam.FrameSize

func (slice byArea) Len() int {
	return len(slice)
}

func (slice byArea) Less(i, j int) bool {
	ls := slice[i].MaxWidth * slice[i].MaxHeight
	rs := slice[j].MaxWidth * slice[j].MaxHeight
	return ls < rs
}

func (slice byArea) Swap(i, j int) {
	slice[i], slice[j] = slice[j], slice[i]
}

// Webcam is a FrameSource backed by a V4L2 device. Switching sensors stops
// the stream and renegotiates the pixel format.
type Webcam struct {
	opts Options
	cam  *webcam.Webcam

	streaming bool
	active    sensor.Mode
	format    webcam.PixelFormat
	w, h      int
}

var _ FrameSource = (*Webcam)(nil)

// Open opens the device and starts streaming in the given mode.
func Open(opts Options, mode sensor.Mode) (*Webcam, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 1
	}
	if opts.MaxTimeouts <= 0 {
		opts.MaxTimeouts = 5
	}

	cam, err := webcam.Open(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Device, err)
	}

	formatDesc := cam.GetSupportedFormats()
	for f, s := range formatDesc {
		monitoring.Logf("%s: available format %s (%#x)", opts.Device, s, uint32(f))
	}

	wc := &Webcam{opts: opts, cam: cam}
	if err := wc.configure(mode); err != nil {
		cam.Close()
		return nil, err
	}
	return wc, nil
}

func (wc *Webcam) selectFormat(mode sensor.Mode) (webcam.PixelFormat, error) {
	supported := wc.cam.GetSupportedFormats()
	for _, f := range modeFormats[mode] {
		if _, ok := supported[f]; ok {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s offers no format for %s sensor", ErrUnsupportedFormat, wc.opts.Device, mode)
}

func (wc *Webcam) selectSize(format webcam.PixelFormat) (*webcam.FrameSize, error) {
	frames := byArea(wc.cam.GetSupportedFrameSizes(format))
	sort.Sort(frames)

	szstr := wc.opts.Size
	switch {
	case szstr == "":
		if len(frames) == 0 {
			return nil, fmt.Errorf("no frame sizes for format %s", formatNames[format])
		}
		return &frames[len(frames)-1], nil
	case strings.Count(szstr, "x") == 1:
		parts := strings.Split(szstr, "x")
		x, xerr := strconv.Atoi(parts[0])
		y, yerr := strconv.Atoi(parts[1])
		if xerr != nil || yerr != nil {
			return nil, fmt.Errorf("couldn't parse width x height from %q", szstr)
		}
		return &webcam.FrameSize{
			MaxWidth:  uint32(x),
			MaxHeight: uint32(y),
		}, nil
	}
	for i := range frames {
		if szstr == frames[i].GetString() {
			return &frames[i], nil
		}
	}
	return nil, fmt.Errorf("no matching frame size %q", szstr)
}

// configure (re)starts the stream in the pixel format of the given sensor.
func (wc *Webcam) configure(mode sensor.Mode) error {
	if wc.streaming {
		if err := wc.cam.StopStreaming(); err != nil {
			return fmt.Errorf("stop streaming: %w", err)
		}
		wc.streaming = false
	}

	format, err := wc.selectFormat(mode)
	if err != nil {
		return err
	}
	size, err := wc.selectSize(format)
	if err != nil {
		return err
	}

	f, w, h, err := wc.cam.SetImageFormat(format, size.MaxWidth, size.MaxHeight)
	if err != nil {
		return fmt.Errorf("SetImageFormat error %v", err)
	}
	monitoring.Logf("%s: %s sensor streaming %s %dx%d", wc.opts.Device, mode, formatNames[f], w, h)

	// A single driver buffer keeps reads current after the loop sleeps.
	if err := wc.cam.SetBufferCount(1); err != nil {
		return fmt.Errorf("set buffer count: %w", err)
	}
	if err := wc.cam.StartStreaming(); err != nil {
		return fmt.Errorf("failed to start stream, %v", err)
	}

	wc.streaming = true
	wc.active = mode
	wc.format = f
	wc.w, wc.h = int(w), int(h)
	return nil
}

// read waits for the next frame from the given sensor and decodes it.
func (wc *Webcam) read(mode sensor.Mode) (image.Image, error) {
	if !wc.streaming || wc.active != mode {
		if err := wc.configure(mode); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapture, err)
		}
	}

	timeouts := 0
	for {
		err := wc.cam.WaitForFrame(wc.opts.Timeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			timeouts++
			if timeouts >= wc.opts.MaxTimeouts {
				return nil, fmt.Errorf("%w: %d timeouts waiting for %s frame", ErrCapture, timeouts, mode)
			}
			continue
		default:
			return nil, fmt.Errorf("%w: wait for frame: %v", ErrCapture, err)
		}

		frame, err := wc.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("%w: read frame: %v", ErrCapture, err)
		}
		if len(frame) == 0 {
			continue
		}

		// the driver reuses its buffer on the next read
		fc := make([]byte, len(frame))
		copy(fc, frame)

		img, err := decodeFrame(fc, wc.w, wc.h, wc.format)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapture, err)
		}
		return img, nil
	}
}

// CaptureGray implements FrameSource.
func (wc *Webcam) CaptureGray(mode sensor.Mode) (*image.Gray, error) {
	img, err := wc.read(mode)
	if err != nil {
		return nil, err
	}
	return grayFrame(img, mode), nil
}

// CaptureStill implements FrameSource.
func (wc *Webcam) CaptureStill(mode sensor.Mode) (image.Image, error) {
	img, err := wc.read(mode)
	if err != nil {
		return nil, err
	}
	if mode == sensor.IR {
		return grayFrame(img, mode), nil
	}
	return img, nil
}

// Close stops streaming and releases the device.
func (wc *Webcam) Close() error {
	if wc.streaming {
		wc.cam.StopStreaming()
		wc.streaming = false
	}
	return wc.cam.Close()
}

// grayFrame applies the per-sensor preparation used for motion sensing.
func grayFrame(img image.Image, mode sensor.Mode) *image.Gray {
	gray := ToGray(img)
	if mode == sensor.IR {
		return Equalize(gray)
	}
	return gray
}
