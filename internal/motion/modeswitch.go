package motion

import (
	"sync/atomic"

	"github.com/xydrolase/mamie-kinect-monitor/internal/sensor"
)

// ModeSwitchRequest asks the loop to move motion sensing and snapshots to
// the given sensors.
type ModeSwitchRequest struct {
	Motion   sensor.Mode
	Snapshot sensor.Mode
}

// Preset returns the request that moves both roles to m. These are the
// only combinations that can be requested at runtime.
func Preset(m sensor.Mode) ModeSwitchRequest {
	return ModeSwitchRequest{Motion: m, Snapshot: m}
}

// ModeSwitch is a single-slot mailbox. Request may be called from any
// goroutine; a newer request replaces one not yet consumed.
type ModeSwitch struct {
	pending atomic.Pointer[ModeSwitchRequest]
}

// Request stores a pending switch, overwriting any unconsumed one.
func (s *ModeSwitch) Request(motion, snapshot sensor.Mode) {
	s.pending.Store(&ModeSwitchRequest{Motion: motion, Snapshot: snapshot})
}

// RequestPreset stores a pending switch of both roles to m.
func (s *ModeSwitch) RequestPreset(m sensor.Mode) {
	r := Preset(m)
	s.pending.Store(&r)
}

// Consume returns and clears the pending request, if any.
func (s *ModeSwitch) Consume() (ModeSwitchRequest, bool) {
	r := s.pending.Swap(nil)
	if r == nil {
		return ModeSwitchRequest{}, false
	}
	return *r, true
}
