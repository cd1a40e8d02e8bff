package motion

import "image"

// Decide reports whether a cycle with the given changed-pixel count should
// trigger a snapshot: more than threshold pixels, but fewer than half the
// frame. A change covering half the frame or more is treated as a global
// lighting change rather than motion.
func Decide(changed int, frame image.Rectangle, threshold int) bool {
	return changed > threshold && 2*changed < frame.Dx()*frame.Dy()
}
