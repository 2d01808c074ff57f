// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flow

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	seq   uint64
	now   func() time.Time
}

// NewMockSource creates a mock motion source that traces a slow circle,
// as if the sensor were carried around a loop.
func NewMockSource() Source {
	return &mockSource{start: time.Now(), now: time.Now}
}

func (m *mockSource) Next() (Sample, error) {
	t := m.now()
	elapsed := t.Sub(m.start).Seconds()
	m.seq++

	return Sample{
		Source: "mock",
		Seq:    m.seq,
		DX:     int16(math.Round(40 * math.Cos(elapsed))),
		DY:     int16(math.Round(40 * math.Sin(elapsed))),
		Motion: true,
		Squal:  uint8(120 + 20*math.Sin(elapsed*0.3)),
		Time:   t,
	}, nil
}
