// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/optical_flow/internal/pmw3901"
)

// RegisterInfo describes one register for the debug UI.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// BitField describes a bit range inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

type regDoc struct {
	desc   string
	fields []BitField
}

var pmw3901Docs = map[byte]regDoc{
	pmw3901.RegProductID:  {desc: "Product identifier, reads 0x49"},
	pmw3901.RegRevisionID: {desc: "Silicon revision"},
	pmw3901.RegMotion: {desc: "Motion status, reading it latches the delta registers",
		fields: []BitField{
			{Bits: "7", Name: "MOT", Description: "Motion since last report", Values: "0=No motion, 1=Motion"},
			{Bits: "0", Name: "FRAME_FROM_0", Description: "Raw data grab frame start", Values: ""},
		}},
	pmw3901.RegDeltaXL: {desc: "Delta X low byte (latched)"},
	pmw3901.RegDeltaXH: {desc: "Delta X high byte (latched)"},
	pmw3901.RegDeltaYL: {desc: "Delta Y low byte (latched)"},
	pmw3901.RegDeltaYH: {desc: "Delta Y high byte (latched)"},
	pmw3901.RegSqual: {desc: "Surface quality, number of valid features",
		fields: []BitField{
			{Bits: "7:0", Name: "SQUAL", Description: "Features = SQUAL * 4", Values: "0-255"},
		}},
	pmw3901.RegRawDataSum:     {desc: "Average raw pixel value"},
	pmw3901.RegMaximumRawData: {desc: "Maximum raw pixel value"},
	pmw3901.RegMinimumRawData: {desc: "Minimum raw pixel value"},
	pmw3901.RegShutterLower:   {desc: "Shutter time low byte"},
	pmw3901.RegShutterUpper:   {desc: "Shutter time high byte"},
	pmw3901.RegObservation:    {desc: "Observation, bits set by the chip once per frame"},
	pmw3901.RegMotionBurst:    {desc: "Burst read of motion registers"},
	pmw3901.RegPowerUpReset: {desc: "Write 0x5A to reset the chip",
		fields: []BitField{
			{Bits: "7:0", Name: "RESET", Description: "Reset command", Values: "0x5A=Reset"},
		}},
	pmw3901.RegShutdown: {desc: "Write 0xB6 to power the chip down",
		fields: []BitField{
			{Bits: "7:0", Name: "SHUTDOWN", Description: "Shutdown command", Values: "0xB6=Shutdown"},
		}},
	pmw3901.RegRawDataGrab:       {desc: "Raw frame grab data"},
	pmw3901.RegRawDataGrabStatus: {desc: "Raw frame grab status"},
	pmw3901.RegInverseProductID:  {desc: "Inverse product identifier, reads 0xB6"},
}

// getPMW3901RegisterMap returns metadata for every named PMW3901 register.
func getPMW3901RegisterMap() []RegisterInfo {
	regs := pmw3901.Registers()
	out := make([]RegisterInfo, 0, len(regs))
	for _, r := range regs {
		info := RegisterInfo{
			Address: fmt.Sprintf("0x%02X", r.Addr),
			Name:    r.Name,
			Access:  r.Access.String(),
		}
		if r.Reset != nil {
			info.Default = fmt.Sprintf("0x%02X", *r.Reset)
		}
		if doc, ok := pmw3901Docs[r.Addr]; ok {
			info.Description = doc.desc
			info.BitFields = doc.fields
		}
		out = append(out, info)
	}
	return out
}
