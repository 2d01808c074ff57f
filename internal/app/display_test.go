package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/optical_flow/internal/flow"
)

func litPixels(lines []string) int {
	img := renderLines(lines)
	n := 0
	for _, b := range img.Pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestRenderLines(t *testing.T) {
	require.Zero(t, litPixels(nil))
	require.NotZero(t, litPixels([]string{"X"}))
	// lines past the fourth do not fit and are dropped
	four := []string{"a", "b", "c", "d"}
	require.Equal(t, litPixels(four), litPixels(append(four, "overflow")))
}

func TestFlowLines(t *testing.T) {
	state := &flowState{}
	require.Equal(t, []string{"Optical flow", "Waiting..."}, flowLines(state))

	state.setStatus(Status{State: "ready"})
	require.Equal(t, "state: ready", flowLines(state)[2])

	state.setSample(flow.Sample{DX: 10, DY: -5, Squal: 77})
	state.setSample(flow.Sample{DX: 10, DY: 0, Squal: 80})
	lines := flowLines(state)
	require.Len(t, lines, 4)
	require.Equal(t, "dX:   10 dY:    0", lines[0])
	require.Equal(t, "Q: 80    0.0deg", lines[1])
	require.Equal(t, "X:      20", lines[2])
	require.Contains(t, lines[3], "Y:      -5")
}
