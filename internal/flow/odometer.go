package flow

import "sync"

// Odometer accumulates deltas. Safe for concurrent use.
type Odometer struct {
	mu      sync.Mutex
	x, y    int64
	path    float64
	samples uint64
}

// Add accumulates one sample.
func (o *Odometer) Add(s Sample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.x += int64(s.DX)
	o.y += int64(s.DY)
	o.path += s.Magnitude()
	o.samples++
}

// Totals returns the accumulated X/Y counts, path length and sample count.
func (o *Odometer) Totals() (x, y int64, path float64, n uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.x, o.y, o.path, o.samples
}

// Reset zeroes the odometer.
func (o *Odometer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.x, o.y, o.path, o.samples = 0, 0, 0, 0
}
