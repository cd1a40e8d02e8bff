package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/xydrolase/mamie-kinect-monitor/internal/motion"
	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
)

// DefaultQuality is the JPEG quality snapshots are saved with.
const DefaultQuality = 70

// Reason records why a snapshot was taken.
type Reason string

const (
	ReasonMotion     Reason = "motion"
	ReasonModeSwitch Reason = "mode-switch"
)

// Snapshot describes a saved still.
type Snapshot struct {
	// Name is the decisecond capture-time identifier the file is named by.
	Name    int64
	Path    string
	TakenAt time.Time
	Reason  Reason

	MotionSensor   sensor.Mode
	SnapshotSensor sensor.Mode
	Changed        int
	Regions        []motion.Region

	Image image.Image
	JPEG  []byte
}

// Store writes snapshots as JPEG files into a directory.
type Store struct {
	dir     string
	quality int

	mu   sync.Mutex
	last int64
}

// NewStore creates dir if needed.
func NewStore(dir string, quality int) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Store{dir: dir, quality: quality}, nil
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// nextName returns the decisecond timestamp of t, bumped past the last
// name handed out so names strictly increase.
func (s *Store) nextName(t time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := t.UnixNano() / int64(100*time.Millisecond)
	if name <= s.last {
		name = s.last + 1
	}
	s.last = name
	return name
}

// Save encodes img and writes it as <deciseconds>.jpg. The returned
// snapshot carries the encoded bytes for downstream sinks.
func (s *Store) Save(img image.Image, t time.Time) (*Snapshot, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	name := s.nextName(t)
	path := filepath.Join(s.dir, strconv.FormatInt(name, 10)+".jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	return &Snapshot{
		Name:    name,
		Path:    path,
		TakenAt: t,
		Image:   img,
		JPEG:    buf.Bytes(),
	}, nil
}
