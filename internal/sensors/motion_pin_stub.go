//go:build !linux

package sensors

import "errors"

type MotionPin struct {
	events chan struct{}
}

func OpenMotionPin(chip string, offset int) (*MotionPin, error) {
	return nil, errors.New("motion pin: gpio character device requires linux")
}

func (p *MotionPin) Events() <-chan struct{} { return p.events }

func (p *MotionPin) Close() error { return nil }
