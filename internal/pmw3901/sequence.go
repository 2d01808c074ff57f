// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pmw3901

import "time"

const (
	// ShortSettle follows the power-up reset and ends the sequence.
	ShortSettle = 50 * time.Millisecond
	// LongSettle lets the internal calibration complete between the two
	// optimization write blocks.
	LongSettle = 100 * time.Millisecond
)

// Step is one entry of the init sequence: a register write, or a delay
// marker when Delay is non-zero.
type Step struct {
	Reg   byte
	Val   byte
	Delay time.Duration
}

// IsDelay reports whether the step is a delay marker.
func (s Step) IsDelay() bool { return s.Delay > 0 }

func wr(reg, val byte) Step { return Step{Reg: reg, Val: val} }

// Performance-optimization sequence, replayed byte for byte. Register 0x7F
// selects the internal bank for the writes that follow it.
var perfOptSequence = []Step{
	wr(0x7F, 0x00),
	wr(0x61, 0xAD),
	wr(0x7F, 0x03),
	wr(0x40, 0x00),
	wr(0x7F, 0x05),
	wr(0x41, 0xB3),
	wr(0x43, 0xF1),
	wr(0x45, 0x14),
	wr(0x5B, 0x32),
	wr(0x5F, 0x34),
	wr(0x7B, 0x08),
	wr(0x7F, 0x06),
	wr(0x44, 0x1B),
	wr(0x40, 0xBF),
	wr(0x4E, 0x3F),
	wr(0x7F, 0x08),
	wr(0x65, 0x20),
	wr(0x6A, 0x18),
	wr(0x7F, 0x09),
	wr(0x4F, 0xAF),
	wr(0x5F, 0x40),
	wr(0x48, 0x80),
	wr(0x49, 0x80),
	wr(0x57, 0x77),
	wr(0x60, 0x78),
	wr(0x61, 0x78),
	wr(0x62, 0x08),
	wr(0x63, 0x50),
	wr(0x7F, 0x0A),
	wr(0x45, 0x60),
	wr(0x7F, 0x00),
	wr(0x4D, 0x11),
	wr(0x55, 0x80),
	wr(0x74, 0x1F),
	wr(0x75, 0x1F),
	wr(0x4A, 0x78),
	wr(0x4B, 0x78),
	wr(0x44, 0x08),
	wr(0x45, 0x50),
	wr(0x64, 0xFF),
	wr(0x65, 0x1F),
	wr(0x7F, 0x14),
	wr(0x65, 0x60),
	wr(0x66, 0x08),
	wr(0x63, 0x78),
	wr(0x7F, 0x15),
	wr(0x48, 0x58),
	wr(0x7F, 0x07),
	wr(0x41, 0x0D),
	wr(0x43, 0x14),
	wr(0x4B, 0x0E),
	wr(0x45, 0x0F),
	wr(0x44, 0x42),
	wr(0x4C, 0x80),
	wr(0x7F, 0x10),
	wr(0x5B, 0x02),
	wr(0x7F, 0x07),
	wr(0x40, 0x41),
	wr(0x70, 0x00),

	{Delay: LongSettle},

	wr(0x32, 0x44),
	wr(0x7F, 0x07),
	wr(0x40, 0x40),
	wr(0x7F, 0x06),
	wr(0x62, 0xF0),
	wr(0x63, 0x00),
	wr(0x7F, 0x0D),
	wr(0x48, 0xC0),
	wr(0x6F, 0xD5),
	wr(0x7F, 0x00),
	wr(0x5B, 0xA0),
	wr(0x4E, 0xA8),
	wr(0x5A, 0x50),
	wr(0x40, 0x80),
}

// PerformanceOptimization returns a copy of the optimization sequence.
func PerformanceOptimization() []Step {
	out := make([]Step, len(perfOptSequence))
	copy(out, perfOptSequence)
	return out
}
