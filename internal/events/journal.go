// Package events keeps a sqlite journal of saved snapshots.
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/xydrolase/mamie-kinect-monitor/internal/snapshot"
)

// Event is a journaled snapshot.
type Event struct {
	ID             string
	Name           int64
	Path           string
	TakenAt        time.Time
	Reason         snapshot.Reason
	MotionSensor   string
	SnapshotSensor string
	Changed        int
	Regions        []RegionRecord
}

// RegionRecord is the stored form of a change region.
type RegionRecord struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Pixels int `json:"pixels"`
}

// Journal records snapshot events in sqlite.
type Journal struct {
	db *sql.DB
}

var _ snapshot.Sink = (*Journal)(nil)

// Open opens (creating if needed) the journal at path and migrates it.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_events (
			id TEXT PRIMARY KEY,
			name INTEGER NOT NULL,
			path TEXT NOT NULL,
			taken_at INTEGER NOT NULL,
			reason TEXT NOT NULL,
			motion_sensor TEXT NOT NULL,
			snapshot_sensor TEXT NOT NULL,
			changed_pixels INTEGER NOT NULL DEFAULT 0,
			regions TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_events_time ON snapshot_events(taken_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := j.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Publish records s; it implements snapshot.Sink.
func (j *Journal) Publish(s *snapshot.Snapshot) error {
	regions := make([]RegionRecord, len(s.Regions))
	for i, r := range s.Regions {
		regions[i] = RegionRecord{
			X:      r.Bounds.Min.X,
			Y:      r.Bounds.Min.Y,
			Width:  r.Bounds.Dx(),
			Height: r.Bounds.Dy(),
			Pixels: r.Pixels,
		}
	}
	return j.Save(&Event{
		ID:             uuid.NewString(),
		Name:           s.Name,
		Path:           s.Path,
		TakenAt:        s.TakenAt,
		Reason:         s.Reason,
		MotionSensor:   s.MotionSensor.String(),
		SnapshotSensor: s.SnapshotSensor.String(),
		Changed:        s.Changed,
		Regions:        regions,
	})
}

// Save inserts an event.
func (j *Journal) Save(e *Event) error {
	regionJSON, err := json.Marshal(e.Regions)
	if err != nil {
		return fmt.Errorf("failed to marshal regions: %w", err)
	}

	query := `INSERT INTO snapshot_events
		(id, name, path, taken_at, reason, motion_sensor, snapshot_sensor, changed_pixels, regions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = j.db.Exec(query, e.ID, e.Name, e.Path, e.TakenAt.UnixNano(), string(e.Reason),
		e.MotionSensor, e.SnapshotSensor, e.Changed, string(regionJSON))
	if err != nil {
		return fmt.Errorf("failed to save snapshot event: %w", err)
	}
	return nil
}

// List returns events newest first, optionally only those taken at or
// after since. A limit of zero or less returns all.
func (j *Journal) List(since *time.Time, limit int) ([]*Event, error) {
	query := `SELECT id, name, path, taken_at, reason, motion_sensor, snapshot_sensor, changed_pixels, regions
		FROM snapshot_events WHERE taken_at >= ? ORDER BY taken_at DESC, name DESC`
	var from int64
	if since != nil {
		from = since.UnixNano()
	}
	args := []any{from}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e          Event
			takenAt    int64
			reason     string
			regionJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Path, &takenAt, &reason, &e.MotionSensor,
			&e.SnapshotSensor, &e.Changed, &regionJSON); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot event: %w", err)
		}
		e.TakenAt = time.Unix(0, takenAt)
		e.Reason = snapshot.Reason(reason)
		if regionJSON.Valid && regionJSON.String != "" {
			if err := json.Unmarshal([]byte(regionJSON.String), &e.Regions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal regions: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
