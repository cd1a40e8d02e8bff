package motion

import "image"

// Window holds the three frames a detection cycle compares: the two
// captures of the current cycle and a baseline carried over from the
// previous cycle. Frames are never modified once captured, so the window
// shares them rather than copying.
type Window struct {
	curr     *image.Gray
	prev     *image.Gray
	baseline *image.Gray
}

// NewWindow returns an empty window.
func NewWindow() *Window {
	return &Window{}
}

// Push stores the two captures of a cycle in capture order: a first, then
// b. When no baseline exists yet, b seeds it.
func (w *Window) Push(a, b *image.Gray) {
	w.curr = a
	w.prev = b
	if w.baseline == nil {
		w.baseline = b
	}
}

// EndCycle carries the later capture of this cycle over as the baseline of
// the next. It must be called exactly once per detection cycle.
func (w *Window) EndCycle() {
	if w.prev != nil {
		w.baseline = w.prev
	}
}

// Reset drops the baseline so frames from different sensors are never
// compared. The next Push re-seeds it.
func (w *Window) Reset() {
	w.baseline = nil
}

// Primed reports whether all three frames are present.
func (w *Window) Primed() bool {
	return w != nil && w.curr != nil && w.prev != nil && w.baseline != nil
}

func (w *Window) Curr() *image.Gray     { return w.curr }
func (w *Window) Prev() *image.Gray     { return w.prev }
func (w *Window) Baseline() *image.Gray { return w.baseline }
