// Package loop drives the capture / evaluate / decide / idle cycle of the
// motion monitor.
package loop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xydrolase/mamie-kinect-monitor/internal/camera"
	"github.com/xydrolase/mamie-kinect-monitor/internal/monitoring"
	"github.com/xydrolase/mamie-kinect-monitor/internal/motion"
	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
	"github.com/xydrolase/mamie-kinect-monitor/internal/snapshot"
	"github.com/xydrolase/mamie-kinect-monitor/internal/timeutil"
)

// State is the loop's position within a cycle.
type State int32

const (
	Capturing State = iota
	Evaluating
	Deciding
	Idle
)

func (s State) String() string {
	switch s {
	case Capturing:
		return "capturing"
	case Evaluating:
		return "evaluating"
	case Deciding:
		return "deciding"
	case Idle:
		return "idle"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Composer builds snapshot images.
type Composer interface {
	Compose(w *motion.Window, cfg motion.Config, ts time.Time, regions ...motion.Region) (*image.NRGBA, error)
}

// Saver persists composed snapshots.
type Saver interface {
	Save(img image.Image, t time.Time) (*snapshot.Snapshot, error)
}

// Report describes one finished cycle.
type Report struct {
	Seq    int
	Config motion.Config

	// Frames as evaluated, before the baseline moved on.
	Curr, Prev, Baseline *image.Gray
	Result               motion.Result

	Triggered bool
	Switched  bool
}

// Observer is notified at the end of every cycle, from the loop goroutine.
type Observer interface {
	OnCycle(r Report)
}

// Stats counts loop activity.
type Stats struct {
	Cycles          int64
	Triggers        int64
	Switches        int64
	CaptureRetries  int64
	SnapshotsSaved  int64
	SnapshotsFailed int64
}

// Options wires the loop's collaborators. Source, Composer and Store are
// required.
type Options struct {
	Source   camera.FrameSource
	Composer Composer
	Store    Saver
	Sinks    []snapshot.Sink
	Switch   *motion.ModeSwitch
	Clock    timeutil.Clock
	Observer Observer

	// MinRegionPixels is the size a change region must exceed to be
	// outlined and journaled.
	MinRegionPixels int
	// CaptureRetries is the number of retries after a failed capture
	// before the loop gives up.
	CaptureRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
}

// Loop is the detection loop. Only Run's goroutine mutates it; Config,
// State and Stats may be read from anywhere.
type Loop struct {
	opts   Options
	window *motion.Window

	mu  sync.RWMutex
	cfg motion.Config

	state    atomic.Int32
	seq      int
	cycles   atomic.Int64
	triggers atomic.Int64
	switches atomic.Int64
	retries  atomic.Int64
	saved    atomic.Int64
	failed   atomic.Int64
}

// New validates cfg and returns a loop ready to run.
func New(cfg motion.Config, opts Options) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil || opts.Composer == nil || opts.Store == nil {
		return nil, errors.New("loop: source, composer and store are required")
	}
	if opts.Switch == nil {
		opts.Switch = &motion.ModeSwitch{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.CaptureRetries < 0 {
		opts.CaptureRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	l := &Loop{
		opts:   opts,
		window: motion.NewWindow(),
		cfg:    cfg,
	}
	l.state.Store(int32(Idle))
	return l, nil
}

// Config returns the active configuration.
func (l *Loop) Config() motion.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// State returns the current position in the cycle.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:          l.cycles.Load(),
		Triggers:        l.triggers.Load(),
		Switches:        l.switches.Load(),
		CaptureRetries:  l.retries.Load(),
		SnapshotsSaved:  l.saved.Load(),
		SnapshotsFailed: l.failed.Load(),
	}
}

// Switch returns the mailbox mode-switch requests are delivered to.
func (l *Loop) Switch() *motion.ModeSwitch {
	return l.opts.Switch
}

// Run cycles until ctx is done or a capture fails past its retries.
// Cancellation is observed between cycles only.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := l.Cycle(); err != nil {
			return err
		}
	}
}

// Cycle runs one full capture, evaluate, decide and idle pass.
func (l *Loop) Cycle() error {
	cfg := l.Config()
	l.seq++
	report := Report{Seq: l.seq, Config: cfg}

	l.setState(Capturing)
	a, err := l.capture(cfg.MotionSensor, cfg.InterframeInterval)
	if err != nil {
		return err
	}
	b, err := l.capture(cfg.MotionSensor, cfg.InterframeInterval)
	if err != nil {
		return err
	}
	l.window.Push(a, b)
	report.Curr, report.Prev, report.Baseline = l.window.Curr(), l.window.Prev(), l.window.Baseline()

	l.setState(Evaluating)
	res, err := motion.Evaluate(l.window, cfg)
	switch {
	case errors.Is(err, motion.ErrFrameSize):
		// the device changed resolution; start over from this cycle's frames
		monitoring.Logf("discarding cycle %d: %v", l.seq, err)
		l.window.Reset()
	case err != nil:
		return err
	default:
		report.Result = res
		l.setState(Deciding)
		if motion.Decide(res.Changed, res.Mask.Bounds(), cfg.PixelThreshold) {
			report.Triggered = true
			l.triggers.Add(1)
			regions := motion.Regions(res.Mask, l.opts.MinRegionPixels)
			if snap := l.snapshot(snapshot.ReasonMotion, l.window, cfg, res.Changed, regions); snap != nil {
				monitoring.Logf("%s: %d pixels changed.", snap.Path, res.Changed)
			}
		}
	}
	l.window.EndCycle()

	if req, ok := l.opts.Switch.Consume(); ok {
		report.Switched = true
		cfg = l.applySwitch(req)
	}

	l.cycles.Add(1)
	if l.opts.Observer != nil {
		l.opts.Observer.OnCycle(report)
	}

	l.setState(Idle)
	l.opts.Clock.Sleep(cfg.ScanInterval)
	return nil
}

// applySwitch moves the loop to the requested sensors, takes a snapshot
// with the new snapshot sensor and drops the baseline so the next cycle
// never compares frames across sensors.
func (l *Loop) applySwitch(req motion.ModeSwitchRequest) motion.Config {
	l.mu.Lock()
	l.cfg = l.cfg.WithModes(req)
	cfg := l.cfg
	l.mu.Unlock()

	l.switches.Add(1)
	monitoring.Logf("switching to motion=%s snapshot=%s", req.Motion, req.Snapshot)

	if snap := l.snapshot(snapshot.ReasonModeSwitch, nil, cfg, 0, nil); snap != nil {
		monitoring.Logf("%s: mode switch snapshot", snap.Path)
	}
	l.window.Reset()
	return cfg
}

// capture reads one motion frame and then waits out the inter-frame
// interval. Failed captures are retried with exponential backoff; a stale
// frame is never substituted.
func (l *Loop) capture(mode sensor.Mode, interval time.Duration) (*image.Gray, error) {
	backoff := l.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		img, err := l.opts.Source.CaptureGray(mode)
		if err == nil {
			l.opts.Clock.Sleep(interval)
			return img, nil
		}
		if attempt >= l.opts.CaptureRetries {
			return nil, fmt.Errorf("capture %s frame after %d attempts: %w", mode, attempt+1, err)
		}
		l.retries.Add(1)
		monitoring.Logf("capture %s frame failed (attempt %d): %v", mode, attempt+1, err)
		l.opts.Clock.Sleep(backoff)
		backoff *= 2
	}
}

// snapshot composes, saves and publishes a still. Failures are logged and
// never stop the loop.
func (l *Loop) snapshot(reason snapshot.Reason, w *motion.Window, cfg motion.Config, changed int, regions []motion.Region) *snapshot.Snapshot {
	ts := l.opts.Clock.Now()

	img, err := l.opts.Composer.Compose(w, cfg, ts, regions...)
	if err != nil {
		l.failed.Add(1)
		monitoring.Logf("failed to compose %s snapshot: %v", reason, err)
		return nil
	}

	snap, err := l.opts.Store.Save(img, ts)
	if err != nil {
		l.failed.Add(1)
		monitoring.Logf("failed to save %s snapshot: %v", reason, err)
		return nil
	}
	l.saved.Add(1)

	snap.Reason = reason
	snap.MotionSensor = cfg.MotionSensor
	snap.SnapshotSensor = cfg.SnapshotSensor
	snap.Changed = changed
	snap.Regions = regions

	for _, sink := range l.opts.Sinks {
		if err := sink.Publish(snap); err != nil {
			monitoring.Logf("failed to publish %s: %v", snap.Path, err)
		}
	}
	return snap
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}
