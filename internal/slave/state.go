package slave

import (
	"sync"
)

// SharedState is the fleet-wide fault state shared by every SlaveMachine
// of a process. Setting it disables all slaves at once.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SharedState struct {
	mu     sync.RWMutex
	fatal  bool
	cause  error
	fault  bool
	onTrip []func(cause error)
}

// NewSharedState returns a cleared state.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// SetFatal trips the fatal state. It returns false when it was already set;
// the first cause is kept.
func (s *SharedState) SetFatal(cause error) bool {
	s.mu.Lock()
	if s.fatal {
		s.mu.Unlock()
		return false
	}
	s.fatal = true
	s.cause = cause
	callbacks := append([]func(error){}, s.onTrip...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(cause)
	}
	return true
}

// SetFault sets or clears the non-fatal fault flag.
func (s *SharedState) SetFault(v bool) {
	s.mu.Lock()
	s.fault = v
	s.mu.Unlock()
}

// Fatal reports whether the fatal state is set.
func (s *SharedState) Fatal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fatal
}

// Fault reports whether the fault flag is set.
func (s *SharedState) Fault() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fault
}

// Tripped reports whether slaves must be disabled.
func (s *SharedState) Tripped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fatal || s.fault
}

// Cause returns the error that set the fatal state.
func (s *SharedState) Cause() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cause
}

// Reset clears both flags. Operators call it once the fleet is safe again.
func (s *SharedState) Reset() {
	s.mu.Lock()
	s.fatal, s.fault, s.cause = false, false, nil
	s.mu.Unlock()
}

// OnFatal registers a callback run when the fatal state is set.
func (s *SharedState) OnFatal(cb func(cause error)) {
	s.mu.Lock()
	s.onTrip = append(s.onTrip, cb)
	s.mu.Unlock()
}
