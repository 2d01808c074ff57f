// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pmw3901

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBound is returned when an operation runs on a transport with no bus.
	ErrNotBound = errors.New("pmw3901: transport not bound")
	// ErrAlreadyBound is returned when binding a transport that already owns a bus.
	ErrAlreadyBound = errors.New("pmw3901: transport already bound")
	// ErrInvalidLength is returned for transfers of 0 or more than MaxTransfer bytes.
	ErrInvalidLength = errors.New("pmw3901: invalid transfer length")
	// ErrInvalidAddress is returned for register addresses above 0x7F.
	ErrInvalidAddress = errors.New("pmw3901: invalid register address")
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("pmw3901: transport failure")
	// ErrSequenceAborted matches every *SequenceError.
	ErrSequenceAborted = errors.New("pmw3901: initialization sequence aborted")
	// ErrInvalidTransition is returned when a sequencer step is requested out of order.
	ErrInvalidTransition = errors.New("pmw3901: invalid sequencer transition")
	// ErrAccess is returned when a register is read or written against its access mode.
	ErrAccess = errors.New("pmw3901: register access violation")
	// ErrIdentity is returned by SelfTest when the ID registers do not match.
	ErrIdentity = errors.New("pmw3901: unexpected product identity")
)

// TransportError wraps a failure reported by the underlying Bus.
type TransportError struct {
	Op   string // "select", "send", "receive" or "deselect"
	Addr byte
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pmw3901: %s reg 0x%02X: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// SequenceError reports the init step that failed. The chip state after a
// partial sequence is unspecified, so the sequencer must be torn down.
type SequenceError struct {
	Phase string
	Step  int
	Reg   byte
	Val   byte
	Err   error
}

func (e *SequenceError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("pmw3901: %s aborted: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("pmw3901: %s aborted at step %d (reg 0x%02X <- 0x%02X): %v",
		e.Phase, e.Step, e.Reg, e.Val, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }

func (e *SequenceError) Is(target error) bool { return target == ErrSequenceAborted }
