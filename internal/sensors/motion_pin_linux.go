//go:build linux

package sensors

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// MotionPin watches the PMW3901 MOTION output (active low) through the GPIO
// character device.
type MotionPin struct {
	line   *gpiocdev.Line
	events chan struct{}
}

// OpenMotionPin requests offset on chip (e.g. "gpiochip0") for falling edges.
func OpenMotionPin(chip string, offset int) (*MotionPin, error) {
	if offset < 0 {
		return nil, fmt.Errorf("motion pin: invalid line %d", offset)
	}
	p := &MotionPin{events: make(chan struct{}, 1)}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithConsumer("optiflow-motion"),
		gpiocdev.WithEventHandler(p.handle))
	if err != nil {
		return nil, fmt.Errorf("motion pin %s:%d: %w", chip, offset, err)
	}
	p.line = line
	return p, nil
}

// handle coalesces bursts of edges into one pending notification.
func (p *MotionPin) handle(gpiocdev.LineEvent) {
	select {
	case p.events <- struct{}{}:
	default:
	}
}

// Events signals once per burst of motion edges.
func (p *MotionPin) Events() <-chan struct{} { return p.events }

func (p *MotionPin) Close() error {
	if p == nil || p.line == nil {
		return nil
	}
	err := p.line.Close()
	p.line = nil
	return err
}
