// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pmw3901

import (
	"fmt"
	"time"
)

// State of the initialization sequencer.
type State int

const (
	Uninitialized State = iota
	Reset
	OptimizationApplied
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Reset:
		return "reset"
	case OptimizationApplied:
		return "optimization_applied"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithSleep replaces time.Sleep for the settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Sequencer) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// Sequencer drives a chip from power-on to Ready. Settle delays always run to
// completion; there is no cancellation.
type Sequencer struct {
	dev   *Dev
	sleep func(time.Duration)
	steps []Step
	state State
}

// NewSequencer returns a sequencer with its own unbound transport. The bus is
// bound only by Reset, so the driver is unusable while Uninitialized or Failed.
func NewSequencer(opts ...Option) *Sequencer {
	s := &Sequencer{
		dev:   New(NewTransport()),
		sleep: time.Sleep,
		steps: perfOptSequence,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dev returns the driver sharing this sequencer's transport.
func (s *Sequencer) Dev() *Dev { return s.dev }

// State returns the current state.
func (s *Sequencer) State() State { return s.state }

// Run performs Reset, ApplyOptimization and Finish in order.
func (s *Sequencer) Run(bus Bus) error {
	if err := s.Reset(bus); err != nil {
		return err
	}
	if err := s.ApplyOptimization(); err != nil {
		return err
	}
	return s.Finish()
}

// Reset binds bus, triggers the power-up reset, waits for the chip to
// respond and discards whatever motion accumulated before the reset.
func (s *Sequencer) Reset(bus Bus) error {
	if err := s.expect(Uninitialized, "reset"); err != nil {
		return err
	}
	if err := s.dev.t.Bind(bus); err != nil {
		return err
	}
	if err := s.dev.PowerUpReset(); err != nil {
		return s.abort(&SequenceError{Phase: "reset", Step: 0, Reg: RegPowerUpReset, Val: powerUpResetCmd, Err: err})
	}
	s.sleep(ShortSettle)
	if _, err := s.dev.ReadMotion(); err != nil {
		return s.abort(&SequenceError{Phase: "reset", Step: -1, Err: err})
	}
	s.state = Reset
	return nil
}

// ApplyOptimization replays the performance-optimization sequence. Any
// failing write aborts the whole sequence.
func (s *Sequencer) ApplyOptimization() error {
	if err := s.expect(Reset, "optimization"); err != nil {
		return err
	}
	for i, st := range s.steps {
		if st.IsDelay() {
			s.sleep(st.Delay)
			continue
		}
		if err := s.dev.writeReg(st.Reg, st.Val); err != nil {
			return s.abort(&SequenceError{Phase: "optimization", Step: i, Reg: st.Reg, Val: st.Val, Err: err})
		}
	}
	s.state = OptimizationApplied
	return nil
}

// Finish waits the final settle delay and marks the chip Ready.
func (s *Sequencer) Finish() error {
	if err := s.expect(OptimizationApplied, "finish"); err != nil {
		return err
	}
	s.sleep(ShortSettle)
	s.state = Ready
	return nil
}

// Teardown releases the bus and returns to Uninitialized. It is the only way
// out of Failed.
func (s *Sequencer) Teardown() {
	if s.dev.t.Bound() {
		_ = s.dev.t.Unbind()
	}
	s.state = Uninitialized
}

func (s *Sequencer) expect(want State, op string) error {
	if s.state != want {
		return fmt.Errorf("%w: %s requires state %s, have %s", ErrInvalidTransition, op, want, s.state)
	}
	return nil
}

// abort moves to Failed and unbinds so no further operation on this binding
// can succeed.
func (s *Sequencer) abort(err *SequenceError) error {
	s.state = Failed
	if s.dev.t.Bound() {
		_ = s.dev.t.Unbind()
	}
	return err
}
