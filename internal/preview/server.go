// Package preview serves a debug view of the detection loop over HTTP: the
// frames of the last cycle, its change mask, and the saved snapshots as a
// multipart JPEG stream.
package preview

import (
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/xydrolase/mamie-kinect-monitor/internal/loop"
	"github.com/xydrolase/mamie-kinect-monitor/internal/monitoring"
	"github.com/xydrolase/mamie-kinect-monitor/internal/snapshot"
)

// Server holds the latest cycle report and snapshot. It is a loop.Observer
// and a snapshot.Sink, and an http.Handler for the preview pages.
type Server struct {
	sync.RWMutex
	report *loop.Report
	last   *snapshot.Snapshot
	subs   map[chan []byte]struct{}

	mux *http.ServeMux
}

// New returns an empty preview server.
func New() *Server {
	s := &Server{
		subs: make(map[chan []byte]struct{}),
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.index)
	s.mux.Handle("/frame/", http.StripPrefix("/frame/", http.HandlerFunc(s.frame)))
	s.mux.HandleFunc("/snapshot.jpg", s.snapshot)
	s.mux.HandleFunc("/stream", s.stream)
	s.mux.HandleFunc("/status", s.status)
	return s
}

// OnCycle records the report of a finished cycle.
func (s *Server) OnCycle(r loop.Report) {
	s.Lock()
	defer s.Unlock()
	s.report = &r
}

// Publish records snap as the latest snapshot and hands its JPEG to every
// stream client that is ready for it.
func (s *Server) Publish(snap *snapshot.Snapshot) error {
	s.Lock()
	defer s.Unlock()
	s.last = snap
	for ch := range s.subs {
		select {
		case ch <- snap.JPEG:
		default:
		}
	}
	return nil
}

func (s *Server) subscribe() chan []byte {
	s.Lock()
	defer s.Unlock()
	ch := make(chan []byte, 1)
	s.subs[ch] = struct{}{}
	return ch
}

func (s *Server) unsubscribe(ch chan []byte) {
	s.Lock()
	defer s.Unlock()
	delete(s.subs, ch)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

func (s *Server) frame(w http.ResponseWriter, r *http.Request) {
	s.RLock()
	defer s.RUnlock()

	var img *image.Gray
	switch r.URL.Path {
	case "curr", "prev", "baseline", "mask":
	default:
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if s.report != nil {
		switch r.URL.Path {
		case "curr":
			img = s.report.Curr
		case "prev":
			img = s.report.Prev
		case "baseline":
			img = s.report.Baseline
		case "mask":
			img = s.report.Result.Mask
		}
	}
	if img == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		monitoring.Logf("preview: encoding %s: %v", r.URL.Path, err)
	}
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	s.RLock()
	defer s.RUnlock()

	if s.last == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.last.JPEG)))
	w.Write(s.last.JPEG)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.RLock()
	defer s.RUnlock()

	var b strings.Builder
	if s.report == nil {
		b.WriteString("waiting for first cycle\n")
	} else {
		rep := s.report
		fmt.Fprintf(&b, "cycle: %d\n", rep.Seq)
		fmt.Fprintf(&b, "motion sensor: %s\n", rep.Config.MotionSensor)
		fmt.Fprintf(&b, "snapshot sensor: %s\n", rep.Config.SnapshotSensor)
		fmt.Fprintf(&b, "changed: %d\n", rep.Result.Changed)
		fmt.Fprintf(&b, "threshold: %d\n", rep.Config.PixelThreshold)
		fmt.Fprintf(&b, "triggered: %t\n", rep.Triggered)
	}
	if s.last != nil {
		fmt.Fprintf(&b, "last snapshot: %s\n", s.last.Path)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, b.String())
}

// stream pushes every published snapshot to the client as one part of a
// multipart/x-mixed-replace response until the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	mjpg := s.subscribe()
	defer s.unsubscribe(mjpg)

	multipartWriter := multipart.NewWriter(w)
	w.Header().Set("Content-Type", `multipart/x-mixed-replace;boundary=`+multipartWriter.Boundary())
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		var image []byte
		select {
		case image = <-mjpg:
		case <-r.Context().Done():
			return
		}
		iw, err := multipartWriter.CreatePart(textproto.MIMEHeader{
			"Content-Type":   []string{"image/jpeg"},
			"Content-Length": []string{strconv.Itoa(len(image))},
		})
		if err != nil {
			monitoring.Logf("preview: %v", err)
			return
		}
		if _, err := iw.Write(image); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
