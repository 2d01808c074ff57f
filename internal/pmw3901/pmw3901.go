// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pmw3901 drives the PixArt PMW3901 optical-flow sensor over SPI.
//
// The package is split the same way the chip is used:
//   - Transport frames single register transactions on a caller-owned Bus.
//   - Dev exposes typed operations (identity, motion deltas, reset, shutdown).
//   - Sequencer replays the vendor power-up and performance-optimization
//     sequence that must complete before motion reads are valid.
//
// Motion deltas are only latched consistently when the Motion register is
// read immediately before the delta registers, so every read helper here
// starts with that read.
package pmw3901

import "fmt"

// Motion is one latched motion readout.
type Motion struct {
	Status byte
	DX     int16
	DY     int16
	Squal  byte
}

// Moved reports whether the chip flagged pending motion.
func (m Motion) Moved() bool { return m.Status&MotionBit != 0 }

// Dev is a PMW3901 bound through a Transport.
type Dev struct {
	t *Transport
}

// New returns a Dev using t. The transport may still be unbound; every
// operation then fails with ErrNotBound.
func New(t *Transport) *Dev {
	return &Dev{t: t}
}

// Transport returns the underlying transport.
func (d *Dev) Transport() *Transport { return d.t }

func (d *Dev) readReg(addr byte) (byte, error) {
	if d == nil || d.t == nil {
		return 0, ErrNotBound
	}
	b, err := d.t.Read(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) writeReg(addr, val byte) error {
	if d == nil || d.t == nil {
		return ErrNotBound
	}
	return d.t.Write(addr, []byte{val})
}

// ProductID reads the Product_ID register (0x49 on a healthy chip).
func (d *Dev) ProductID() (byte, error) {
	return d.readReg(RegProductID)
}

// InverseProductID reads the Inverse_Product_ID register.
func (d *Dev) InverseProductID() (byte, error) {
	return d.readReg(RegInverseProductID)
}

// RevisionID reads the Revision_ID register.
func (d *Dev) RevisionID() (byte, error) {
	return d.readReg(RegRevisionID)
}

// DeltaXY returns the accumulated X/Y motion since the last read.
func (d *Dev) DeltaXY() (int16, int16, error) {
	m, err := d.ReadMotion()
	if err != nil {
		return 0, 0, err
	}
	return m.DX, m.DY, nil
}

// ReadMotion reads the Motion register, which latches the delta
// accumulators, then the X low/high and Y low/high registers in that order.
func (d *Dev) ReadMotion() (Motion, error) {
	var m Motion
	var err error
	if m.Status, err = d.readReg(RegMotion); err != nil {
		return Motion{}, err
	}
	var raw [4]byte
	for i, addr := range [4]byte{RegDeltaXL, RegDeltaXH, RegDeltaYL, RegDeltaYH} {
		if raw[i], err = d.readReg(addr); err != nil {
			return Motion{}, err
		}
	}
	m.DX = combine(raw[0], raw[1])
	m.DY = combine(raw[2], raw[3])
	return m, nil
}

// ReadMotionQuality is ReadMotion followed by a Squal read in the same group.
func (d *Dev) ReadMotionQuality() (Motion, error) {
	m, err := d.ReadMotion()
	if err != nil {
		return Motion{}, err
	}
	if m.Squal, err = d.readReg(RegSqual); err != nil {
		return Motion{}, err
	}
	return m, nil
}

// combine assembles a two's complement 16-bit value from its byte halves.
func combine(lo, hi byte) int16 {
	return int16(uint16(hi)<<8 | uint16(lo))
}

// SurfaceQuality reads the Squal register.
func (d *Dev) SurfaceQuality() (byte, error) {
	return d.readReg(RegSqual)
}

// Shutter returns the 16-bit shutter value (upper:lower).
func (d *Dev) Shutter() (uint16, error) {
	lo, err := d.readReg(RegShutterLower)
	if err != nil {
		return 0, err
	}
	hi, err := d.readReg(RegShutterUpper)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// PowerUpReset writes the reset trigger byte to Power_Up_Reset.
func (d *Dev) PowerUpReset() error {
	return d.writeReg(RegPowerUpReset, powerUpResetCmd)
}

// Shutdown places the chip in its low-power state.
func (d *Dev) Shutdown() error {
	return d.writeReg(RegShutdown, shutdownCmd)
}

// SelfTest reads Product_ID and Inverse_Product_ID and returns ErrIdentity
// unless they are 0x49 and its complement.
func (d *Dev) SelfTest() error {
	id, err := d.ProductID()
	if err != nil {
		return err
	}
	inv, err := d.InverseProductID()
	if err != nil {
		return err
	}
	if id != ProductID || id^0xFF != inv {
		return fmt.Errorf("%w: product=0x%02X inverse=0x%02X", ErrIdentity, id, inv)
	}
	return nil
}

// ReadRegister reads any readable register. Named write-only registers are refused.
func (d *Dev) ReadRegister(addr byte) (byte, error) {
	if r, _ := Lookup(addr); !r.CanRead() {
		return 0, fmt.Errorf("%w: 0x%02X %s is write-only", ErrAccess, addr, r.Name)
	}
	return d.readReg(addr)
}

// WriteRegister writes any writable register. Named read-only registers are refused.
func (d *Dev) WriteRegister(addr, val byte) error {
	if r, _ := Lookup(addr); !r.CanWrite() {
		return fmt.Errorf("%w: 0x%02X %s is read-only", ErrAccess, addr, r.Name)
	}
	return d.writeReg(addr, val)
}
