// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pmw3901

import "sync"

// R/W bit lives in the MSB of the address byte.
const (
	readFlag  = 0x00
	writeFlag = 0x80
	addrMask  = 0x7F

	// MaxTransfer is the largest payload accepted in one transaction.
	MaxTransfer = 8
)

// Bus is the raw serial bus primitive. Each call blocks until complete.
type Bus interface {
	Select() error
	Deselect() error
	Send(p []byte) error
	Receive(p []byte) error
}

// Transport frames register transactions on a single bound Bus.
// The zero value is an unbound transport.
type Transport struct {
	mu  sync.Mutex
	bus Bus
}

// NewTransport returns an unbound transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Bind attaches bus to the transport.
func (t *Transport) Bind(bus Bus) error {
	if bus == nil {
		return ErrNotBound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bus != nil {
		return ErrAlreadyBound
	}
	t.bus = bus
	return nil
}

// Unbind detaches the bus. It is an error to unbind an unbound transport.
func (t *Transport) Unbind() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bus == nil {
		return ErrNotBound
	}
	t.bus = nil
	return nil
}

// Bound reports whether a bus is attached.
func (t *Transport) Bound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bus != nil
}

// Read reads n bytes starting at register addr.
func (t *Transport) Read(addr byte, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(addr, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	err := t.transact(addr, []byte{readFlag | (addr & addrMask)}, func() error {
		if err := t.bus.Receive(buf); err != nil {
			return &TransportError{Op: "receive", Addr: addr, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Write writes data starting at register addr.
func (t *Transport) Write(addr byte, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(addr, len(data)); err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	return t.transact(addr, []byte{writeFlag | (addr & addrMask)}, func() error {
		if err := t.bus.Send(payload); err != nil {
			return &TransportError{Op: "send", Addr: addr, Err: err}
		}
		return nil
	})
}

func (t *Transport) check(addr byte, n int) error {
	if t.bus == nil {
		return ErrNotBound
	}
	if n < 1 || n > MaxTransfer {
		return ErrInvalidLength
	}
	if addr > addrMask {
		return ErrInvalidAddress
	}
	return nil
}

// transact runs one chip-select assertion: header byte, then body.
// Deselect always runs once select succeeded; the first error wins.
func (t *Transport) transact(addr byte, header []byte, body func() error) (err error) {
	if err := t.bus.Select(); err != nil {
		return &TransportError{Op: "select", Addr: addr, Err: err}
	}
	defer func() {
		if derr := t.bus.Deselect(); derr != nil && err == nil {
			err = &TransportError{Op: "deselect", Addr: addr, Err: derr}
		}
	}()
	if err := t.bus.Send(header); err != nil {
		return &TransportError{Op: "send", Addr: addr, Err: err}
	}
	return body()
}
