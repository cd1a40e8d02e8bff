// Package camera captures frames from the Kinect's video and infrared
// sensors through V4L2.
package camera

import (
	"errors"
	"image"

	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
)

var (
	// ErrCapture is returned when the device cannot deliver a frame.
	ErrCapture = errors.New("capture failed")

	// ErrUnsupportedFormat is returned for pixel formats the decoder does not handle.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
)

// FrameSource yields frames from one of the camera's sensors. Calls are not
// safe for concurrent use; the device is shared by both sensors.
type FrameSource interface {
	// CaptureGray returns a single-channel frame for motion sensing. IR
	// frames are histogram equalized, RGB frames converted to luma.
	CaptureGray(mode sensor.Mode) (*image.Gray, error)

	// CaptureStill returns a frame for a snapshot: full color for RGB,
	// equalized gray for IR.
	CaptureStill(mode sensor.Mode) (image.Image, error)

	Close() error
}
