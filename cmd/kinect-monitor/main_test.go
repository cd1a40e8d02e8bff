package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("KINECT_TEST_SET", "/dev/video2")
	t.Setenv("KINECT_TEST_EMPTY", "")

	assert.Equal(t, "/dev/video2", envOr("KINECT_TEST_SET", "/dev/video0"))
	assert.Equal(t, "/dev/video0", envOr("KINECT_TEST_EMPTY", "/dev/video0"))
	assert.Equal(t, "snapshots", envOr("KINECT_TEST_UNSET", "snapshots"))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, seconds(0.05))
	assert.Equal(t, 500*time.Millisecond, seconds(0.5))
	assert.Equal(t, time.Duration(0), seconds(0))
}
