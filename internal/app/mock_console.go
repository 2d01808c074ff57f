// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/optical_flow/internal/flow"
)

// RunMockConsole prints mock samples without a broker or a sensor.
func RunMockConsole(interval time.Duration) error {
	src := flow.NewMockSource()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		s, err := src.Next()
		if err != nil {
			return err
		}
		fmt.Print(FormatFlowLine(s))
	}
	return nil
}
