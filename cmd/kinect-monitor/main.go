// Command kinect-monitor watches a Kinect sensor for motion and saves
// timestamped JPEG snapshots when something moves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/xydrolase/mamie-kinect-monitor/internal/camera"
	"github.com/xydrolase/mamie-kinect-monitor/internal/events"
	"github.com/xydrolase/mamie-kinect-monitor/internal/loop"
	"github.com/xydrolase/mamie-kinect-monitor/internal/motion"
	"github.com/xydrolase/mamie-kinect-monitor/internal/preview"
	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
	"github.com/xydrolase/mamie-kinect-monitor/internal/snapshot"
	"github.com/xydrolase/mamie-kinect-monitor/internal/timeutil"
)

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	def := motion.DefaultConfig()
	motionSensor, photoSensor := def.MotionSensor, def.SnapshotSensor

	pixels := flag.Int("p", def.PixelThreshold, "number of changed pixels required to trigger a snapshot")
	interval := flag.Float64("i", def.InterframeInterval.Seconds(), "seconds between the two captures of a cycle")
	scan := flag.Float64("s", def.ScanInterval.Seconds(), "seconds to idle between cycles")
	blur := flag.Int("b", def.BlurKernel, "gaussian blur kernel size, odd")
	threshold := flag.Int("t", def.DiffThreshold, "per-pixel intensity difference threshold")
	flag.Var(&motionSensor, "motion", "sensor used for motion detection (ir or rgb)")
	flag.Var(&photoSensor, "photo", "sensor used for snapshots (ir or rgb)")

	dev := flag.String("d", envOr("KINECT_DEVICE", "/dev/video0"), "video device to use")
	size := flag.String("size", envOr("KINECT_SIZE", ""), "frame size to use, default largest one")
	dir := flag.String("dir", envOr("SNAPSHOT_DIR", "snapshots"), "directory snapshots are written to")
	db := flag.String("db", envOr("EVENTS_DB", ""), "sqlite event journal, default <dir>/events.db")
	archive := flag.String("archive", envOr("ARCHIVE_PATH", ""), "also append snapshots to this MJPEG AVI file")
	addr := flag.String("l", envOr("PREVIEW_ADDR", ""), "addr to serve the debug preview on, disabled if empty")
	tz := flag.String("tz", envOr("TZ", "Local"), "time zone of the snapshot timestamps")
	retries := flag.Int("retries", 2, "capture retries before giving up")
	flag.Parse()

	cfg := motion.Config{
		PixelThreshold:     *pixels,
		InterframeInterval: seconds(*interval),
		ScanInterval:       seconds(*scan),
		BlurKernel:         *blur,
		DiffThreshold:      *threshold,
		MotionSensor:       motionSensor,
		SnapshotSensor:     photoSensor,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("unknown time zone %q: %w", *tz, err)
	}

	store, err := snapshot.NewStore(*dir, snapshot.DefaultQuality)
	if err != nil {
		return err
	}

	if *db == "" {
		*db = filepath.Join(store.Dir(), "events.db")
	}
	journal, err := events.Open(*db)
	if err != nil {
		return err
	}
	defer journal.Close()

	sinks := []snapshot.Sink{journal, snapshot.Nop{}}
	if *archive != "" {
		a := snapshot.NewArchive(*archive, 2, snapshot.DefaultQuality)
		defer func() {
			if err := a.Close(); err != nil {
				log.Printf("failed to close archive: %v", err)
			}
		}()
		sinks = append(sinks, a)
	}

	var observer loop.Observer
	if *addr != "" {
		p := preview.New()
		sinks = append(sinks, p)
		observer = p
		go func() {
			log.Printf("serving preview on %s", *addr)
			log.Fatal(http.ListenAndServe(*addr, p))
		}()
	}

	cam, err := camera.Open(camera.Options{Device: *dev, Size: *size}, cfg.MotionSensor)
	if err != nil {
		return err
	}
	defer cam.Close()

	l, err := loop.New(cfg, loop.Options{
		Source:          cam,
		Composer:        snapshot.NewComposer(cam, loc),
		Store:           store,
		Sinks:           sinks,
		Clock:           timeutil.RealClock{},
		Observer:        observer,
		MinRegionPixels: cfg.PixelThreshold / 10,
		CaptureRetries:  *retries,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGUSR1:
				log.Println("received SIGUSR1, switching to rgb")
				l.Switch().RequestPreset(sensor.RGB)
			case syscall.SIGUSR2:
				log.Println("received SIGUSR2, switching to ir")
				l.Switch().RequestPreset(sensor.IR)
			default:
				log.Printf("received %s, stopping after this cycle", sig)
				cancel()
			}
		}
	}()

	log.Printf("watching %s: motion=%s snapshot=%s threshold=%d", *dev, cfg.MotionSensor, cfg.SnapshotSensor, cfg.PixelThreshold)
	if err := l.Run(ctx); err != nil {
		return fmt.Errorf("detection loop failed: %w", err)
	}
	s := l.Stats()
	log.Printf("stopped after %d cycles, %d snapshots saved", s.Cycles, s.SnapshotsSaved)
	return nil
}
