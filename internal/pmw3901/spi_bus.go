// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pmw3901

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// DefaultSPISpeed is the fastest clock the chip accepts.
const DefaultSPISpeed = 2 * physic.MegaHertz

// Bus timing from the datasheet, rounded up.
const (
	tSRAD = 50 * time.Microsecond  // address byte to first read byte
	tSWW  = 200 * time.Microsecond // deselect to next transaction
)

// SPIBus is a Bus on a periph.io SPI port with a GPIO driven chip-select.
// The kernel chip-select is disabled (spi.NoCS) because a read spans two
// transfers under one assertion.
type SPIBus struct {
	port  spi.PortCloser
	conn  spi.Conn
	cs    gpio.PinOut
	sleep func(time.Duration)
}

// OpenSPIBus opens spiDev (a periph spireg name such as "SPI0.0") in mode 3.
// host.Init must already have run.
func OpenSPIBus(spiDev string, cs gpio.PinOut, speed physic.Frequency) (*SPIBus, error) {
	if cs == nil {
		return nil, fmt.Errorf("pmw3901: chip-select pin is nil")
	}
	if speed <= 0 {
		speed = DefaultSPISpeed
	}
	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("pmw3901: open %s: %w", spiDev, err)
	}
	conn, err := port.Connect(speed, spi.Mode3|spi.NoCS, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("pmw3901: connect %s at %s: %w", spiDev, speed, err)
	}
	if err := cs.Out(gpio.High); err != nil {
		port.Close()
		return nil, fmt.Errorf("pmw3901: chip-select idle: %w", err)
	}
	return &SPIBus{port: port, conn: conn, cs: cs, sleep: time.Sleep}, nil
}

// Select asserts chip-select (active low).
func (b *SPIBus) Select() error {
	return b.cs.Out(gpio.Low)
}

// Deselect releases chip-select and waits the inter-transaction gap.
func (b *SPIBus) Deselect() error {
	if err := b.cs.Out(gpio.High); err != nil {
		return err
	}
	b.sleep(tSWW)
	return nil
}

// Send clocks p out, discarding what comes back.
func (b *SPIBus) Send(p []byte) error {
	return b.conn.Tx(p, make([]byte, len(p)))
}

// Receive clocks zeros out and fills p.
func (b *SPIBus) Receive(p []byte) error {
	b.sleep(tSRAD)
	return b.conn.Tx(make([]byte, len(p)), p)
}

// Close releases the SPI port.
func (b *SPIBus) Close() error {
	_ = b.cs.Out(gpio.High)
	return b.port.Close()
}
