package flow

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSample_AngleAndMagnitude(t *testing.T) {
	s := Sample{DX: 3, DY: 4}
	require.InDelta(t, 5.0, s.Magnitude(), 1e-9)
	require.InDelta(t, math.Atan2(4, 3)*180/math.Pi, s.Angle(), 1e-9)

	require.InDelta(t, 90.0, Sample{DX: 0, DY: 10}.Angle(), 1e-9)
	require.InDelta(t, 180.0, Sample{DX: -10, DY: 0}.Angle(), 1e-9)
	require.Zero(t, Sample{}.Magnitude())
}

func TestOdometer(t *testing.T) {
	var o Odometer
	o.Add(Sample{DX: 3, DY: 4})
	o.Add(Sample{DX: -1, DY: 0})

	x, y, path, n := o.Totals()
	require.Equal(t, int64(2), x)
	require.Equal(t, int64(4), y)
	require.InDelta(t, 6.0, path, 1e-9)
	require.Equal(t, uint64(2), n)

	o.Reset()
	x, y, path, n = o.Totals()
	require.Zero(t, x)
	require.Zero(t, y)
	require.Zero(t, path)
	require.Zero(t, n)
}

func TestMockSource(t *testing.T) {
	start := time.Unix(1000, 0)
	now := start
	m := &mockSource{start: start, now: func() time.Time { return now }}

	s, err := m.Next()
	require.NoError(t, err)
	require.Equal(t, int16(40), s.DX)
	require.Equal(t, int16(0), s.DY)
	require.Equal(t, uint64(1), s.Seq)

	second := float64(time.Second)
	now = start.Add(time.Duration(math.Pi / 2 * second))
	s, err = m.Next()
	require.NoError(t, err)
	require.Equal(t, int16(0), s.DX)
	require.Equal(t, int16(40), s.DY)
	require.Equal(t, uint64(2), s.Seq)
}
