package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/optical_flow/internal/pmw3901"
)

func TestShellCommands(t *testing.T) {
	mgr, chip := newReadyManager(t)

	out, err := shellID(mgr, nil)
	require.NoError(t, err)
	require.Equal(t, "product 0x49 revision 0x00", out)

	out, err = shellRead(mgr, []string{"0x5F"})
	require.NoError(t, err)
	require.Equal(t, "0x5F = 0xB6", out)

	_, err = shellRead(mgr, nil)
	require.Error(t, err)
	_, err = shellRead(mgr, []string{"0x3A"})
	require.ErrorIs(t, err, pmw3901.ErrAccess)

	out, err = shellWrite(mgr, []string{"0x15", "0x02"})
	require.NoError(t, err)
	require.Equal(t, "0x15 <- 0x02", out)
	chip.mu.Lock()
	require.EqualValues(t, 0x02, chip.regs[0x15])
	chip.regs[pmw3901.RegDeltaXL] = 0x05
	chip.mu.Unlock()

	out, err = shellDelta(mgr, nil)
	require.NoError(t, err)
	require.Equal(t, "dx=5 dy=0", out)

	out, err = shellState(mgr, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "ready spi=2000000Hz"), out)

	out, err = shellRegs(mgr, nil)
	require.NoError(t, err)
	require.Contains(t, out, "0x00 Product_ID")
	require.Contains(t, out, "0x5F Inverse_Product_ID")
	require.Less(t, strings.Index(out, "0x00"), strings.Index(out, "0x5F"))

	out, err = shellSelfTest(mgr, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	_, err = shellShutdown(mgr, nil)
	require.NoError(t, err)
	out, _ = shellState(mgr, nil)
	require.True(t, strings.HasPrefix(out, "uninitialized"), out)

	out, err = shellInit(mgr, nil)
	require.NoError(t, err)
	require.Equal(t, "ready", out)
}

func TestShellWriteShutdownRegister(t *testing.T) {
	mgr, chip := newReadyManager(t)

	_, err := shellWrite(mgr, []string{"0x3B", "0xB6"})
	require.NoError(t, err)
	chip.mu.Lock()
	require.EqualValues(t, 0xB6, chip.regs[pmw3901.RegShutdown])
	chip.mu.Unlock()
	out, _ := shellState(mgr, nil)
	require.True(t, strings.HasPrefix(out, "uninitialized"), out)

	_, err = shellInit(mgr, nil)
	require.NoError(t, err)
	_, err = shellWrite(mgr, []string{"0x3A", "0x5A"})
	require.NoError(t, err)
	out, _ = shellState(mgr, nil)
	require.True(t, strings.HasPrefix(out, "ready"), out)
}

func TestShellCommandNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range shellCmds {
		require.False(t, seen[c.name], c.name)
		seen[c.name] = true
	}
	for _, want := range []string{"id", "read", "write", "delta", "init", "shutdown", "state", "regs"} {
		require.True(t, seen[want], want)
	}
}
