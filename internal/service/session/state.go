// Package session drives one speech-translation session and collects its
// finalized segments.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateIdle - Session is configured but recognition has not started.
	StateIdle State = iota
	// StateRunning - Recognition is running, callbacks are being delivered.
	StateRunning
	// StateStopping - Completion observed, stop requested.
	StateStopping
	// StateStopped - Session is stopped. Terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// Errors for invalid state transitions.
var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotRunning     = errors.New("session is not running")
	ErrStopped        = errors.New("session is stopped")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → RUNNING → STOPPING → STOPPED
//	  │                            ▲
//	  └──────── Stop() ────────────┘
//
// Rules:
//   - IDLE: Start() moves to RUNNING (once)
//   - RUNNING: BeginStop() moves to STOPPING
//   - STOPPING: Stop() moves to STOPPED
//   - STOPPED: all transitions return ErrStopped
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     State
}

// NewLifecycle creates a new session lifecycle in IDLE state.
func NewLifecycle(sessionId string) *Lifecycle {
	return &Lifecycle{
		sessionId: sessionId,
		state:     StateIdle,
	}
}

// SessionId returns the session ID.
func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Start transitions IDLE → RUNNING.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateIdle:
		l.state = StateRunning
		return nil
	case StateRunning, StateStopping:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// BeginStop transitions RUNNING → STOPPING.
func (l *Lifecycle) BeginStop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateRunning:
		l.state = StateStopping
		return nil
	case StateIdle, StateStopping:
		return ErrNotRunning
	case StateStopped:
		return ErrStopped
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Stop transitions to STOPPED from any non-terminal state.
// Returns false if already stopped.
func (l *Lifecycle) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateStopped
	return true
}
