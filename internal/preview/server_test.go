package preview

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xydrolase/mamie-kinect-monitor/internal/loop"
	"github.com/xydrolase/mamie-kinect-monitor/internal/motion"
	"github.com/xydrolase/mamie-kinect-monitor/internal/snapshot"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func report() loop.Report {
	curr := image.NewGray(image.Rect(0, 0, 8, 6))
	mask := image.NewGray(image.Rect(0, 0, 8, 6))
	mask.Pix[0] = 255
	return loop.Report{
		Seq:      4,
		Config:   motion.DefaultConfig(),
		Curr:     curr,
		Prev:     curr,
		Baseline: curr,
		Result:   motion.Result{Mask: mask, Changed: 1},
	}
}

func TestIndex(t *testing.T) {
	s := New()
	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `src="/stream"`)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/nope").Code)
}

func TestFrame(t *testing.T) {
	s := New()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/frame/mask").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/frame/other").Code)

	s.OnCycle(report())
	for _, name := range []string{"curr", "prev", "baseline", "mask"} {
		rec := get(t, s, "/frame/"+name)
		require.Equal(t, http.StatusOK, rec.Code, name)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

		img, err := png.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
	}
}

func TestSnapshotAndStatus(t *testing.T) {
	s := New()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/snapshot.jpg").Code)
	assert.Contains(t, get(t, s, "/status").Body.String(), "waiting")

	s.OnCycle(report())
	require.NoError(t, s.Publish(&snapshot.Snapshot{Path: "/tmp/1.jpg", JPEG: []byte{0xff, 0xd8, 0xff, 0xd9}}))

	rec := get(t, s, "/snapshot.jpg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xd9}, rec.Body.Bytes())

	status := get(t, s, "/status").Body.String()
	assert.Contains(t, status, "cycle: 4")
	assert.Contains(t, status, "motion sensor: ir")
	assert.Contains(t, status, "changed: 1")
	assert.Contains(t, status, "last snapshot: /tmp/1.jpg")
}

func TestStream(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)

	jpg := append([]byte{0xff, 0xd8}, bytes.Repeat([]byte{0x42}, 1024)...)
	require.NoError(t, s.Publish(&snapshot.Snapshot{JPEG: jpg}))

	part, err := multipart.NewReader(resp.Body, params["boundary"]).NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
	assert.Equal(t, "1026", part.Header.Get("Content-Length"))

	head := make([]byte, 2)
	_, err = io.ReadFull(part, head)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, head)
}
