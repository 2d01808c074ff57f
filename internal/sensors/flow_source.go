// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/pmw3901"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// BusCloser is a pmw3901 bus that owns an OS resource.
type BusCloser interface {
	pmw3901.Bus
	Close() error
}

// BusOpener opens the bus described by cfg at the given clock.
type BusOpener func(cfg config.SensorConfig, speed physic.Frequency) (BusCloser, error)

// openSPIBus is the production BusOpener.
func openSPIBus(cfg config.SensorConfig, speed physic.Frequency) (BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s: periph host init: %w", cfg.Name, err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("%s: CS pin %q not found", cfg.Name, cfg.CSPin)
	}

	bus, err := pmw3901.OpenSPIBus(cfg.SPIDevice, cs, speed)
	if err != nil {
		return nil, fmt.Errorf("%s: SPI bus (%s): %w", cfg.Name, cfg.SPIDevice, err)
	}
	return bus, nil
}
