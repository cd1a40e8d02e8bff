// Package motion implements the three-frame change detector: the rolling
// window, the blur/difference/threshold/dilate pipeline, the trigger
// decision and the sensor mode switch.
package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid detector config")

// Config holds the per-run detection parameters.
type Config struct {
	// PixelThreshold is the changed-pixel count a cycle must exceed to trigger.
	PixelThreshold int
	// InterframeInterval separates the two captures of a cycle.
	InterframeInterval time.Duration
	// ScanInterval is the rest between cycles.
	ScanInterval time.Duration
	// BlurKernel is the odd Gaussian kernel size; 1 disables blurring.
	BlurKernel int
	// DiffThreshold is the 0-255 cutoff applied to blurred differences.
	DiffThreshold int

	MotionSensor   sensor.Mode
	SnapshotSensor sensor.Mode
}

// DefaultConfig returns the settings the monitor ships with.
func DefaultConfig() Config {
	return Config{
		PixelThreshold:     1000,
		InterframeInterval: 50 * time.Millisecond,
		ScanInterval:       500 * time.Millisecond,
		BlurKernel:         21,
		DiffThreshold:      25,
		MotionSensor:       sensor.IR,
		SnapshotSensor:     sensor.IR,
	}
}

// Validate checks the parameters once at startup. The pipeline itself does
// not re-check them.
func (c Config) Validate() error {
	if c.BlurKernel < 1 || c.BlurKernel%2 == 0 {
		return fmt.Errorf("%w: blur kernel must be odd and positive, got %d", ErrInvalidConfig, c.BlurKernel)
	}
	if c.PixelThreshold < 0 {
		return fmt.Errorf("%w: pixel threshold must not be negative, got %d", ErrInvalidConfig, c.PixelThreshold)
	}
	if c.DiffThreshold < 0 || c.DiffThreshold > 255 {
		return fmt.Errorf("%w: difference threshold must be within 0-255, got %d", ErrInvalidConfig, c.DiffThreshold)
	}
	if c.InterframeInterval < 0 || c.ScanInterval < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	if !c.MotionSensor.Valid() || !c.SnapshotSensor.Valid() {
		return fmt.Errorf("%w: unknown sensor (motion %s, snapshot %s)", ErrInvalidConfig, c.MotionSensor, c.SnapshotSensor)
	}
	return nil
}

// WithModes returns a copy of c using the sensors of r.
func (c Config) WithModes(r ModeSwitchRequest) Config {
	c.MotionSensor = r.Motion
	c.SnapshotSensor = r.Snapshot
	return c
}
