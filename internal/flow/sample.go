package flow

import (
	"math"
	"time"
)

// Sample is one motion readout as published on MQTT.
type Sample struct {
	Source string    `json:"source"`
	Seq    uint64    `json:"seq"`
	DX     int16     `json:"dx"` // counts since previous sample
	DY     int16     `json:"dy"`
	Motion bool      `json:"motion"`
	Squal  uint8     `json:"squal"` // surface quality
	Time   time.Time `json:"time"`
}

// Source is anything that can provide motion samples over time.
type Source interface {
	Next() (Sample, error)
}

// Angle returns the direction of travel in degrees, atan2(dy, dx).
func (s Sample) Angle() float64 {
	return math.Atan2(float64(s.DY), float64(s.DX)) * 180.0 / math.Pi
}

// Magnitude returns the length of the delta vector in counts.
func (s Sample) Magnitude() float64 {
	x := float64(s.DX)
	y := float64(s.DY)
	return math.Sqrt(x*x + y*y)
}
