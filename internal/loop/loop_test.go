package loop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xydrolase/mamie-kinect-monitor/internal/camera"
	"github.com/xydrolase/mamie-kinect-monitor/internal/monitoring"
	"github.com/xydrolase/mamie-kinect-monitor/internal/motion"
	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
	"github.com/xydrolase/mamie-kinect-monitor/internal/snapshot"
	"github.com/xydrolase/mamie-kinect-monitor/internal/timeutil"
)

const (
	testW = 160
	testH = 120
)

func uniform(v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, testW, testH))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func withBlock(src *image.Gray, r image.Rectangle, v uint8) *image.Gray {
	img := image.NewGray(src.Bounds())
	copy(img.Pix, src.Pix)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Pix[img.PixOffset(x, y)] = v
		}
	}
	return img
}

// fakeSource serves frames from a per-call generator and records calls.
type fakeSource struct {
	gray   func(n int, mode sensor.Mode) (*image.Gray, error)
	grays  []sensor.Mode
	stills []sensor.Mode
}

func (f *fakeSource) CaptureGray(mode sensor.Mode) (*image.Gray, error) {
	f.grays = append(f.grays, mode)
	return f.gray(len(f.grays), mode)
}

func (f *fakeSource) CaptureStill(mode sensor.Mode) (image.Image, error) {
	f.stills = append(f.stills, mode)
	return uniform(50), nil
}

func (f *fakeSource) Close() error { return nil }

var _ camera.FrameSource = (*fakeSource)(nil)

type failingStore struct{ calls int }

func (s *failingStore) Save(image.Image, time.Time) (*snapshot.Snapshot, error) {
	s.calls++
	return nil, errors.New("disk full")
}

type recordingSink struct{ snaps []*snapshot.Snapshot }

func (s *recordingSink) Publish(snap *snapshot.Snapshot) error {
	s.snaps = append(s.snaps, snap)
	return nil
}

type errSink struct{}

func (errSink) Publish(*snapshot.Snapshot) error { return errors.New("upload refused") }

// stopAfter cancels the run once n cycles completed and keeps the reports.
type stopAfter struct {
	n       int
	cancel  context.CancelFunc
	reports []Report
	hook    func(r Report)
}

func (s *stopAfter) OnCycle(r Report) {
	s.reports = append(s.reports, r)
	if s.hook != nil {
		s.hook(r)
	}
	if len(s.reports) >= s.n {
		s.cancel()
	}
}

type harness struct {
	loop   *Loop
	src    *fakeSource
	clock  *timeutil.MockClock
	sink   *recordingSink
	obs    *stopAfter
	ctx    context.Context
	logs   []string
	logsMu sync.Mutex
}

func testConfig() motion.Config {
	cfg := motion.DefaultConfig()
	cfg.PixelThreshold = 100
	cfg.BlurKernel = 5
	return cfg
}

func newHarness(t *testing.T, cfg motion.Config, cycles int, gray func(n int, mode sensor.Mode) (*image.Gray, error), store Saver) *harness {
	t.Helper()
	h := &harness{
		src:   &fakeSource{gray: gray},
		clock: timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		sink:  &recordingSink{},
	}

	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		h.logsMu.Lock()
		defer h.logsMu.Unlock()
		h.logs = append(h.logs, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = original })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.ctx = ctx
	h.obs = &stopAfter{n: cycles, cancel: cancel}

	if store == nil {
		s, err := snapshot.NewStore(filepath.Join(t.TempDir(), "snapshots"), snapshot.DefaultQuality)
		require.NoError(t, err)
		store = s
	}

	l, err := New(cfg, Options{
		Source:          h.src,
		Composer:        snapshot.NewComposer(h.src, time.UTC),
		Store:           store,
		Sinks:           []snapshot.Sink{h.sink},
		Clock:           h.clock,
		Observer:        h.obs,
		MinRegionPixels: 10,
		CaptureRetries:  2,
		RetryBackoff:    100 * time.Millisecond,
	})
	require.NoError(t, err)
	h.loop = l
	return h
}

func (h *harness) logged(substr string) bool {
	h.logsMu.Lock()
	defer h.logsMu.Unlock()
	for _, l := range h.logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BlurKernel = 4
	_, err := New(cfg, Options{Source: &fakeSource{}, Composer: snapshot.NewComposer(nil, nil), Store: &failingStore{}})
	assert.ErrorIs(t, err, motion.ErrInvalidConfig)

	_, err = New(testConfig(), Options{})
	assert.Error(t, err)
}

func TestRun_StaticSceneNeverTriggers(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, 3, func(int, sensor.Mode) (*image.Gray, error) {
		return uniform(100), nil
	}, nil)

	require.NoError(t, h.loop.Run(h.ctx))

	assert.Empty(t, h.sink.snaps)
	assert.Equal(t, int64(3), h.loop.Stats().Cycles)
	assert.Equal(t, Idle, h.loop.State())

	i, s := cfg.InterframeInterval, cfg.ScanInterval
	assert.Equal(t, []time.Duration{i, i, s, i, i, s, i, i, s}, h.clock.Sleeps())
	for _, r := range h.obs.reports {
		assert.Equal(t, 0, r.Result.Changed)
	}
}

func TestRun_MotionTriggersCompositeSnapshot(t *testing.T) {
	bg := uniform(100)
	moving := withBlock(bg, image.Rect(60, 40, 90, 70), 200)
	h := newHarness(t, testConfig(), 2, func(n int, _ sensor.Mode) (*image.Gray, error) {
		// the third capture (first of cycle two) shows the block
		if n == 3 {
			return moving, nil
		}
		return bg, nil
	}, nil)

	require.NoError(t, h.loop.Run(h.ctx))

	require.Len(t, h.obs.reports, 2)
	assert.False(t, h.obs.reports[0].Triggered)
	second := h.obs.reports[1]
	assert.True(t, second.Triggered)
	assert.Greater(t, second.Result.Changed, 100)

	require.Len(t, h.sink.snaps, 1)
	snap := h.sink.snaps[0]
	assert.Equal(t, snapshot.ReasonMotion, snap.Reason)
	assert.Equal(t, second.Result.Changed, snap.Changed)
	assert.NotEmpty(t, snap.Regions)
	assert.Equal(t, 2*testH, snap.Image.Bounds().Dy(), "composite of both captures")
	assert.Empty(t, h.src.stills)
	assert.True(t, h.logged(fmt.Sprintf("%s: %d pixels changed.", snap.Path, snap.Changed)))
	assert.Equal(t, int64(1), h.loop.Stats().Triggers)
}

func TestRun_ModeSwitchForcesSnapshotAndResetsBaseline(t *testing.T) {
	ir, rgb := uniform(100), uniform(180)
	h := newHarness(t, testConfig(), 3, func(_ int, mode sensor.Mode) (*image.Gray, error) {
		if mode == sensor.RGB {
			return rgb, nil
		}
		return ir, nil
	}, nil)

	h.obs.hook = func(r Report) {
		if r.Seq == 1 {
			// two pending requests collapse into the last one
			h.loop.Switch().RequestPreset(sensor.IR)
			h.loop.Switch().RequestPreset(sensor.RGB)
		}
	}

	require.NoError(t, h.loop.Run(h.ctx))

	// the request raised during cycle 1 is consumed at the end of cycle 2
	require.Len(t, h.obs.reports, 3)
	assert.False(t, h.obs.reports[0].Switched)
	assert.True(t, h.obs.reports[1].Switched)

	// forced snapshot: fresh still from the new sensor
	assert.Equal(t, []sensor.Mode{sensor.RGB}, h.src.stills)
	require.Len(t, h.sink.snaps, 1)
	assert.Equal(t, snapshot.ReasonModeSwitch, h.sink.snaps[0].Reason)
	assert.Equal(t, sensor.RGB, h.sink.snaps[0].SnapshotSensor)
	assert.Equal(t, testH, h.sink.snaps[0].Image.Bounds().Dy())

	third := h.obs.reports[2]
	assert.Equal(t, sensor.RGB, third.Config.MotionSensor)
	assert.Same(t, rgb, third.Baseline, "baseline re-seeded from the new sensor")
	assert.Equal(t, 0, third.Result.Changed)
	assert.Equal(t, sensor.RGB, h.loop.Config().SnapshotSensor)
	assert.Equal(t, int64(1), h.loop.Stats().Switches)

	assert.Equal(t, []sensor.Mode{sensor.IR, sensor.IR, sensor.IR, sensor.IR, sensor.RGB, sensor.RGB}, h.src.grays)
}

func TestRun_StorageFailureDoesNotStopLoop(t *testing.T) {
	bg := uniform(100)
	store := &failingStore{}
	h := newHarness(t, testConfig(), 3, func(n int, _ sensor.Mode) (*image.Gray, error) {
		if n%2 == 1 {
			return withBlock(bg, image.Rect(10, 10, 40, 40), 220), nil
		}
		return bg, nil
	}, store)

	require.NoError(t, h.loop.Run(h.ctx))

	stats := h.loop.Stats()
	assert.Equal(t, int64(3), stats.Cycles)
	assert.Equal(t, int64(3), stats.Triggers)
	assert.Equal(t, int64(3), stats.SnapshotsFailed)
	assert.Equal(t, 3, store.calls)
	assert.Empty(t, h.sink.snaps)
	assert.True(t, h.logged("disk full"))
}

func TestRun_SinkFailureIsLogged(t *testing.T) {
	bg := uniform(100)
	h := newHarness(t, testConfig(), 1, func(n int, _ sensor.Mode) (*image.Gray, error) {
		if n == 1 {
			return withBlock(bg, image.Rect(10, 10, 40, 40), 220), nil
		}
		return bg, nil
	}, nil)
	h.loop.opts.Sinks = append(h.loop.opts.Sinks, errSink{})

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Len(t, h.sink.snaps, 1)
	assert.True(t, h.logged("upload refused"))
}

func TestRun_TransientCaptureFailureRetried(t *testing.T) {
	h := newHarness(t, testConfig(), 1, func(n int, _ sensor.Mode) (*image.Gray, error) {
		if n == 1 {
			return nil, camera.ErrCapture
		}
		return uniform(100), nil
	}, nil)

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Equal(t, int64(1), h.loop.Stats().CaptureRetries)
	assert.Equal(t, 100*time.Millisecond, h.clock.Sleeps()[0])
}

func TestRun_PersistentCaptureFailureIsFatal(t *testing.T) {
	h := newHarness(t, testConfig(), 5, func(int, sensor.Mode) (*image.Gray, error) {
		return nil, fmt.Errorf("%w: device unplugged", camera.ErrCapture)
	}, nil)

	err := h.loop.Run(h.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, camera.ErrCapture)
	assert.Len(t, h.src.grays, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, h.clock.Sleeps())
	assert.Equal(t, Capturing, h.loop.State())
	assert.Empty(t, h.obs.reports)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t, testConfig(), 1, func(int, sensor.Mode) (*image.Gray, error) {
		return uniform(1), nil
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.loop.Run(ctx))
	assert.Empty(t, h.src.grays)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "capturing", Capturing.String())
	assert.Equal(t, "evaluating", Evaluating.String())
	assert.Equal(t, "deciding", Deciding.String())
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "State(9)", State(9).String())
}
