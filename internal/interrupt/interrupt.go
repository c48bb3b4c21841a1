// Package interrupt implements a cooperative cancellation surface,
// built from a mutex-guarded fired flag plus a channel closed on fire;
// the CLI entrypoint fires it from its signal.NotifyContext watcher.
package interrupt

import (
	"sync"
	"time"
)

// Manager is a one-shot-per-arming cooperative cancellation signal,
// safe to arm/fire from any goroutine (a signal handler, a TUI
// keypress handler, or the scheduler itself).
type Manager struct {
	mu      sync.Mutex
	armed   bool
	fired   bool
	ch      chan struct{}
}

// New returns a disarmed Manager.
func New() *Manager {
	return &Manager{}
}

// Arm prepares the manager to receive a single Fire. Arming an
// already-armed manager resets the fired flag.
func (m *Manager) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
	m.fired = false
	m.ch = make(chan struct{})
}

// Disarm stops the manager from accepting further fires until
// re-armed; Check continues to report the last fired state.
func (m *Manager) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
}

// Fire signals an interrupt. A no-op if not armed or already fired.
func (m *Manager) Fire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed || m.fired {
		return
	}
	m.fired = true
	close(m.ch)
}

// Check reports whether an interrupt has fired since the last Clear,
// without blocking.
func (m *Manager) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Clear resets the fired flag, allowing Check to report false again.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired = false
}

// Done returns a channel that closes when the current arming fires,
// suitable for use in a select alongside context cancellation. A
// manager that was never armed returns a nil channel, which never
// closes.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}

// Wait blocks until fired or timeout elapses, returning whether it
// fired. A zero timeout waits indefinitely.
func (m *Manager) Wait(timeout time.Duration) bool {
	done := m.Done()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
