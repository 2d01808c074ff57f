// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pmw3901

// Named registers. Tuning registers written by the performance-optimization
// sequence are PixArt proprietary and only appear as numeric addresses.
const (
	RegProductID         = 0x00
	RegRevisionID        = 0x01
	RegMotion            = 0x02
	RegDeltaXL           = 0x03
	RegDeltaXH           = 0x04
	RegDeltaYL           = 0x05
	RegDeltaYH           = 0x06
	RegSqual             = 0x07
	RegRawDataSum        = 0x08
	RegMaximumRawData    = 0x09
	RegMinimumRawData    = 0x0A
	RegShutterLower      = 0x0B
	RegShutterUpper      = 0x0C
	RegObservation       = 0x15
	RegMotionBurst       = 0x16
	RegPowerUpReset      = 0x3A
	RegShutdown          = 0x3B
	RegRawDataGrab       = 0x58
	RegRawDataGrabStatus = 0x59
	RegInverseProductID  = 0x5F
)

// Known constant values.
const (
	ProductID        = 0x49
	InverseProductID = 0xB6

	powerUpResetCmd = 0x5A
	shutdownCmd     = 0xB6

	// MotionBit is set in the Motion register when deltas are pending.
	MotionBit = 0x80
)

// Access is the access mode of a register.
type Access uint8

const (
	RO Access = iota + 1
	WO
	RW
)

func (a Access) String() string {
	switch a {
	case RO:
		return "R"
	case WO:
		return "W"
	case RW:
		return "RW"
	default:
		return "?"
	}
}

// Register describes one entry of the register map.
type Register struct {
	Addr   byte
	Name   string
	Access Access
	Reset  *byte
}

// CanRead reports whether the register may be read.
func (r Register) CanRead() bool { return r.Access == RO || r.Access == RW }

// CanWrite reports whether the register may be written.
func (r Register) CanWrite() bool { return r.Access == WO || r.Access == RW }

func resetVal(v byte) *byte { return &v }

var registers = []Register{
	{Addr: RegProductID, Name: "Product_ID", Access: RO, Reset: resetVal(ProductID)},
	{Addr: RegRevisionID, Name: "Revision_ID", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegMotion, Name: "Motion", Access: RW, Reset: resetVal(0x00)},
	{Addr: RegDeltaXL, Name: "Delta_X_L", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegDeltaXH, Name: "Delta_X_H", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegDeltaYL, Name: "Delta_Y_L", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegDeltaYH, Name: "Delta_Y_H", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegSqual, Name: "Squal", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegRawDataSum, Name: "RawData_Sum", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegMaximumRawData, Name: "Maximum_RawData", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegMinimumRawData, Name: "Minimum_RawData", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegShutterLower, Name: "Shutter_Lower", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegShutterUpper, Name: "Shutter_Upper", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegObservation, Name: "Observation", Access: RW, Reset: resetVal(0x00)},
	{Addr: RegMotionBurst, Name: "Motion_Burst", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegPowerUpReset, Name: "Power_Up_Reset", Access: WO},
	{Addr: RegShutdown, Name: "Shutdown", Access: WO},
	{Addr: RegRawDataGrab, Name: "Raw_Data_Grab", Access: RW, Reset: resetVal(0x00)},
	{Addr: RegRawDataGrabStatus, Name: "Raw_Data_Grab_Status", Access: RO, Reset: resetVal(0x00)},
	{Addr: RegInverseProductID, Name: "Inverse_Product_ID", Access: RO, Reset: resetVal(InverseProductID)},
}

// Registers returns a copy of the named register table, ordered by address.
func Registers() []Register {
	out := make([]Register, len(registers))
	copy(out, registers)
	return out
}

// Lookup returns the named register at addr. Unnamed addresses in range are
// vendor tuning registers and are reported as RW with ok=false.
func Lookup(addr byte) (Register, bool) {
	for _, r := range registers {
		if r.Addr == addr {
			return r, true
		}
	}
	return Register{Addr: addr, Access: RW}, false
}
