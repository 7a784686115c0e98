// Package timemgr tracks the shared simulated-time axis a master advances:
// the current time, the fixed macro step size, and the remaining budget.
package timemgr

import (
	"errors"
	"fmt"
)

// ErrNoRemaining is returned by NextStep when t_current has already reached
// t_final.
var ErrNoRemaining = errors.New("timemgr: no remaining time budget")

// ErrCurrentExceedsFinal is returned when a caller tries to set the current
// time past t_final.
var ErrCurrentExceedsFinal = errors.New("timemgr: current time exceeds final time")

// Manager holds (t0, t_final, t_current, dt) and enforces
// t_initial <= t_current <= t_final.
type Manager struct {
	t0       float64
	tFinal   float64
	tCurrent float64
	dt       float64
}

// New constructs a Manager at t_current = t0.
func New(t0, tFinal, dt float64) (*Manager, error) {
	if tFinal < t0 {
		return nil, fmt.Errorf("timemgr: final time %g precedes initial time %g", tFinal, t0)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("timemgr: step size must be positive, got %g", dt)
	}
	return &Manager{t0: t0, tFinal: tFinal, tCurrent: t0, dt: dt}, nil
}

// Current returns t_current.
func (m *Manager) Current() float64 { return m.tCurrent }

// Initial returns t0.
func (m *Manager) Initial() float64 { return m.t0 }

// Final returns t_final.
func (m *Manager) Final() float64 { return m.tFinal }

// StepSize returns the configured macro step size dt.
func (m *Manager) StepSize() float64 { return m.dt }

// Remaining returns t_final - t_current, never negative.
func (m *Manager) Remaining() float64 {
	r := m.tFinal - m.tCurrent
	if r < 0 {
		return 0
	}
	return r
}

// NextStep returns min(dt, remaining); fails with ErrNoRemaining when the
// manager has already reached t_final.
func (m *Manager) NextStep() (float64, error) {
	remaining := m.Remaining()
	if remaining <= 0 {
		return 0, ErrNoRemaining
	}
	if m.dt < remaining {
		return m.dt, nil
	}
	return remaining, nil
}

// Advance increments t_current by dtUsed, clamped to t_final.
func (m *Manager) Advance(dtUsed float64) {
	m.tCurrent += dtUsed
	if m.tCurrent > m.tFinal {
		m.tCurrent = m.tFinal
	}
}

// SetCurrent forces t_current, failing if the requested value exceeds
// t_final.
func (m *Manager) SetCurrent(t float64) error {
	if t > m.tFinal {
		return fmt.Errorf("%w: %g > %g", ErrCurrentExceedsFinal, t, m.tFinal)
	}
	m.tCurrent = t
	return nil
}

// Reset restores t_current to t0.
func (m *Manager) Reset() {
	m.tCurrent = m.t0
}
