package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"

	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
	"github.com/xydrolase/mamie-kinect-monitor/internal/snapshot"
)

func mockJournal(t *testing.T) (*Journal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Journal{db: db}, mock
}

func TestJournal_PublishInsertError(t *testing.T) {
	j, mock := mockJournal(t)
	taken := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	mock.ExpectExec("INSERT INTO snapshot_events").
		WithArgs(sqlmock.AnyArg(), int64(17149792890), "/snapshots/17149792890.jpg", taken.UnixNano(),
			"mode-switch", "rgb", "rgb", int64(0), "[]").
		WillReturnError(errors.New("database is locked"))

	err := j.Publish(&snapshot.Snapshot{
		Name:           17149792890,
		Path:           "/snapshots/17149792890.jpg",
		TakenAt:        taken,
		Reason:         snapshot.ReasonModeSwitch,
		MotionSensor:   sensor.RGB,
		SnapshotSensor: sensor.RGB,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save snapshot event")
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_ListQueryError(t *testing.T) {
	j, mock := mockJournal(t)
	mock.ExpectQuery("SELECT (.+) FROM snapshot_events").
		WillReturnError(errors.New("no such table"))

	_, err := j.List(nil, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list snapshot events")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_ListScanError(t *testing.T) {
	j, mock := mockJournal(t)
	rows := sqlmock.NewRows([]string{"id", "name", "path", "taken_at", "reason",
		"motion_sensor", "snapshot_sensor", "changed_pixels", "regions"}).
		AddRow("a", 1, "/1.jpg", int64(1), "motion", "ir", "ir", 2000, "{not json")
	mock.ExpectQuery("SELECT (.+) FROM snapshot_events").WillReturnRows(rows)

	_, err := j.List(nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal regions")
}
