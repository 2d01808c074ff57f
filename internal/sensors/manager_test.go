package sensors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/pmw3901"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

// chipBus emulates a PMW3901 register file. Identity registers are fixed
// and reading Motion latches the pending deltas.
type chipBus struct {
	mu       sync.Mutex
	regs     map[byte]byte
	header   byte
	inTxn    bool
	gotHdr   bool
	closed   bool
	writes   int
	pendX    int16
	pendY    int16
	failRecv error
	wrongID  bool
}

func newChipBus() *chipBus {
	return &chipBus{regs: map[byte]byte{}}
}

func (c *chipBus) Select() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("chip: bus closed")
	}
	c.inTxn, c.gotHdr = true, false
	return nil
}

func (c *chipBus) Deselect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTxn = false
	return nil
}

func (c *chipBus) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.gotHdr {
		c.header, c.gotHdr = p[0], true
		return nil
	}
	addr := c.header & 0x7F
	for i, b := range p {
		c.regs[addr+byte(i)] = b
	}
	c.writes++
	return nil
}

func (c *chipBus) Receive(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRecv != nil {
		return c.failRecv
	}
	addr := c.header & 0x7F
	for i := range p {
		p[i] = c.read(addr + byte(i))
	}
	return nil
}

func (c *chipBus) read(addr byte) byte {
	switch addr {
	case pmw3901.RegProductID:
		if c.wrongID {
			return 0x00
		}
		return pmw3901.ProductID
	case pmw3901.RegInverseProductID:
		return pmw3901.InverseProductID
	case pmw3901.RegMotion:
		var v byte
		if c.pendX != 0 || c.pendY != 0 {
			v = pmw3901.MotionBit
		}
		x, y := uint16(c.pendX), uint16(c.pendY)
		c.regs[pmw3901.RegDeltaXL] = byte(x)
		c.regs[pmw3901.RegDeltaXH] = byte(x >> 8)
		c.regs[pmw3901.RegDeltaYL] = byte(y)
		c.regs[pmw3901.RegDeltaYH] = byte(y >> 8)
		c.pendX, c.pendY = 0, 0
		return v
	}
	return c.regs[addr]
}

func (c *chipBus) move(dx, dy int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendX += dx
	c.pendY += dy
}

func (c *chipBus) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type openerLog struct {
	buses  []*chipBus
	speeds []physic.Frequency
	fail   error
	setup  func(*chipBus)
}

func (o *openerLog) open(cfg config.SensorConfig, speed physic.Frequency) (BusCloser, error) {
	if o.fail != nil {
		return nil, o.fail
	}
	b := newChipBus()
	if o.setup != nil {
		o.setup(b)
	}
	o.buses = append(o.buses, b)
	o.speeds = append(o.speeds, speed)
	return b, nil
}

func (o *openerLog) last() *chipBus { return o.buses[len(o.buses)-1] }

func newTestManager(t *testing.T, o *openerLog) *FlowManager {
	t.Helper()
	cfg := config.Default().Sensor
	cfg.Name = "test"
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewFlowManager(cfg,
		WithBusOpener(o.open),
		WithSettleSleep(func(time.Duration) {}),
		WithClock(func() time.Time { return fixed }))
}

func TestFlowManager_InitAndReadSample(t *testing.T) {
	o := &openerLog{}
	m := newTestManager(t, o)
	require.False(t, m.IsAvailable())
	require.Equal(t, pmw3901.Uninitialized, m.State())

	require.NoError(t, m.Init())
	require.True(t, m.IsAvailable())
	require.Equal(t, pmw3901.Ready, m.State())
	require.Len(t, o.buses, 1)
	require.Equal(t, pmw3901.DefaultSPISpeed, o.speeds[0])

	// reset write plus the whole optimization table
	require.Equal(t, 1+73, o.last().writes)

	o.last().move(12, -300)
	s, err := m.ReadSample()
	require.NoError(t, err)
	require.Equal(t, "test", s.Source)
	require.EqualValues(t, 1, s.Seq)
	require.EqualValues(t, 12, s.DX)
	require.EqualValues(t, -300, s.DY)
	require.True(t, s.Motion)

	s, err = m.Next()
	require.NoError(t, err)
	require.EqualValues(t, 2, s.Seq)
	require.Zero(t, s.DX)
	require.Zero(t, s.DY)
	require.False(t, s.Motion)

	// second Init is a no-op
	require.NoError(t, m.Init())
	require.Len(t, o.buses, 1)
}

func TestFlowManager_NotReady(t *testing.T) {
	m := newTestManager(t, &openerLog{})
	_, err := m.ReadSample()
	require.ErrorIs(t, err, ErrNotReady)
	_, err = m.ReadRegister(pmw3901.RegProductID)
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorIs(t, m.WriteRegister(pmw3901.RegObservation, 0), ErrNotReady)
	_, err = m.ReadAllRegisters()
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorIs(t, m.SelfTest(), ErrNotReady)
}

func TestFlowManager_OpenFailure(t *testing.T) {
	o := &openerLog{fail: errors.New("no spi")}
	m := newTestManager(t, o)
	require.Error(t, m.Init())
	require.False(t, m.IsAvailable())
	require.Equal(t, pmw3901.Failed, m.State())
	require.EqualError(t, m.LastError(), "no spi")
}

func TestFlowManager_SequenceFailureClosesBus(t *testing.T) {
	o := &openerLog{setup: func(b *chipBus) { b.failRecv = errors.New("miso stuck") }}
	m := newTestManager(t, o)
	err := m.Init()
	require.ErrorIs(t, err, pmw3901.ErrSequenceAborted)
	require.ErrorIs(t, err, pmw3901.ErrTransport)
	require.True(t, o.last().closed)
	require.False(t, m.IsAvailable())
}

func TestFlowManager_WrongChipStillStreams(t *testing.T) {
	o := &openerLog{setup: func(b *chipBus) { b.wrongID = true }}
	m := newTestManager(t, o)
	require.NoError(t, m.Init())
	require.True(t, m.IsAvailable())
	require.ErrorIs(t, m.SelfTest(), pmw3901.ErrIdentity)
}

func TestFlowManager_RegisterAccess(t *testing.T) {
	o := &openerLog{}
	m := newTestManager(t, o)
	require.NoError(t, m.Init())

	v, err := m.ReadRegister(pmw3901.RegProductID)
	require.NoError(t, err)
	require.EqualValues(t, pmw3901.ProductID, v)

	require.NoError(t, m.WriteRegister(pmw3901.RegObservation, 0x00))
	require.ErrorIs(t, m.WriteRegister(pmw3901.RegProductID, 0x00), pmw3901.ErrAccess)
	_, err = m.ReadRegister(pmw3901.RegShutdown)
	require.ErrorIs(t, err, pmw3901.ErrAccess)

	prod, rev, err := m.Identity()
	require.NoError(t, err)
	require.EqualValues(t, pmw3901.ProductID, prod)
	require.Zero(t, rev)

	all, err := m.ReadAllRegisters()
	require.NoError(t, err)
	require.EqualValues(t, pmw3901.ProductID, all[pmw3901.RegProductID])
	require.EqualValues(t, pmw3901.InverseProductID, all[pmw3901.RegInverseProductID])
	require.NotContains(t, all, byte(pmw3901.RegPowerUpReset))
	require.NotContains(t, all, byte(pmw3901.RegMotionBurst))

	exp, err := m.ExportRegisterConfig()
	require.NoError(t, err)
	for addr := range exp {
		r, ok := pmw3901.Lookup(addr)
		require.True(t, ok)
		require.Equal(t, pmw3901.RW, r.Access)
	}
}

func TestFlowManager_SetSPISpeedReinitializes(t *testing.T) {
	o := &openerLog{}
	m := newTestManager(t, o)
	require.NoError(t, m.Init())

	require.Error(t, m.SetSPISpeed(4_000_000))
	require.NoError(t, m.SetSPISpeed(500_000))
	require.EqualValues(t, 500_000, m.GetSPISpeed())
	require.Len(t, o.buses, 2)
	require.True(t, o.buses[0].closed)
	require.Equal(t, 500*physic.KiloHertz, o.speeds[1])
	require.True(t, m.IsAvailable())
}

func TestFlowManager_ShutdownAndClose(t *testing.T) {
	o := &openerLog{}
	m := newTestManager(t, o)
	require.NoError(t, m.Init())

	require.NoError(t, m.Shutdown())
	require.EqualValues(t, 0xB6, o.last().regs[pmw3901.RegShutdown])
	require.True(t, o.last().closed)
	require.False(t, m.IsAvailable())

	require.NoError(t, m.Init())
	require.NoError(t, m.Close())
	require.False(t, m.IsAvailable())
}

func TestFlowManager_CommandRegisterWritesKeepStateTruthful(t *testing.T) {
	o := &openerLog{}
	m := newTestManager(t, o)
	require.NoError(t, m.Init())

	require.NoError(t, m.WriteRegister(pmw3901.RegPowerUpReset, 0x5A))
	require.Len(t, o.buses, 2)
	require.True(t, o.buses[0].closed)
	require.Equal(t, 1+73, o.last().writes)
	require.Equal(t, pmw3901.Ready, m.State())

	require.NoError(t, m.WriteRegister(pmw3901.RegShutdown, 0x00))
	require.EqualValues(t, 0xB6, o.last().regs[pmw3901.RegShutdown])
	require.True(t, o.last().closed)
	require.Equal(t, pmw3901.Uninitialized, m.State())
	require.False(t, m.IsAvailable())

	require.ErrorIs(t, m.WriteRegister(pmw3901.RegShutdown, 0xB6), ErrNotReady)
}

func TestRegisterMap(t *testing.T) {
	regs := getPMW3901RegisterMap()
	require.Len(t, regs, len(pmw3901.Registers()))
	byAddr := map[string]RegisterInfo{}
	for _, r := range regs {
		byAddr[r.Address] = r
		require.NotEmpty(t, r.Description, r.Address)
	}
	require.Equal(t, "Product_ID", byAddr["0x00"].Name)
	require.Equal(t, "R", byAddr["0x00"].Access)
	require.Equal(t, "0x49", byAddr["0x00"].Default)
	require.Equal(t, "W", byAddr["0x3A"].Access)
	require.Empty(t, byAddr["0x3A"].Default)
	require.Equal(t, "RW", byAddr["0x02"].Access)
	require.NotEmpty(t, byAddr["0x02"].BitFields)
}
