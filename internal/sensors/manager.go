package sensors

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/flow"
	"github.com/relabs-tech/optical_flow/internal/pmw3901"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

// ErrNotReady is returned when the sensor has not completed initialization.
var ErrNotReady = errors.New("sensors: flow sensor not initialized")

// FlowManager owns the PMW3901 and serializes every access to it, so a
// motion readout (motion register plus four delta registers) is never
// interleaved with another caller's transaction.
type FlowManager struct {
	mu sync.Mutex

	cfg   config.SensorConfig
	open  BusOpener
	sleep func(time.Duration)
	now   func() time.Time
	speed physic.Frequency

	bus     BusCloser
	seq     *pmw3901.Sequencer
	seqNo   uint64
	lastErr error
}

// ManagerOption configures a FlowManager.
type ManagerOption func(*FlowManager)

// WithBusOpener replaces the SPI bus opener.
func WithBusOpener(open BusOpener) ManagerOption {
	return func(m *FlowManager) { m.open = open }
}

// WithSettleSleep replaces time.Sleep for the init settle delays.
func WithSettleSleep(sleep func(time.Duration)) ManagerOption {
	return func(m *FlowManager) { m.sleep = sleep }
}

// WithClock replaces time.Now for sample timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *FlowManager) { m.now = now }
}

var (
	flowMgr     *FlowManager
	flowMgrOnce sync.Once
)

// GetFlowManager returns the process-wide manager built from config.Get().
func GetFlowManager() *FlowManager {
	flowMgrOnce.Do(func() {
		cfg := config.Get()
		if cfg == nil {
			cfg = config.Default()
		}
		flowMgr = NewFlowManager(cfg.Sensor)
	})
	return flowMgr
}

// NewFlowManager returns an uninitialized manager for the sensor in cfg.
func NewFlowManager(cfg config.SensorConfig, opts ...ManagerOption) *FlowManager {
	if cfg.Name == "" {
		cfg.Name = "pmw3901"
	}
	m := &FlowManager{
		cfg:   cfg,
		open:  openSPIBus,
		sleep: time.Sleep,
		now:   time.Now,
		speed: physic.Frequency(cfg.SPISpeedHz) * physic.Hertz,
	}
	if m.speed <= 0 {
		m.speed = pmw3901.DefaultSPISpeed
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Init opens the bus and runs the full initialization sequence. Calling it
// on a ready sensor is a no-op.
func (m *FlowManager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready() {
		return nil
	}
	return m.bringUp()
}

func (m *FlowManager) ready() bool {
	return m.seq != nil && m.seq.State() == pmw3901.Ready
}

// bringUp must be called with mu held and the previous binding released.
func (m *FlowManager) bringUp() error {
	log.Infof("%s: opening %s (cs %s) at %s", m.cfg.Name, m.cfg.SPIDevice, m.cfg.CSPin, m.speed)

	bus, err := m.open(m.cfg, m.speed)
	if err != nil {
		m.lastErr = err
		return err
	}

	seq := pmw3901.NewSequencer(pmw3901.WithSleep(m.sleep))
	start := time.Now()
	if err := seq.Run(bus); err != nil {
		var serr *pmw3901.SequenceError
		if errors.As(err, &serr) {
			log.Errorf("%s: init aborted in %s at step %d (reg 0x%02X): %v", m.cfg.Name, serr.Phase, serr.Step, serr.Reg, serr.Err)
		}
		seq.Teardown()
		_ = bus.Close()
		m.lastErr = fmt.Errorf("%s: initialization: %w", m.cfg.Name, err)
		return m.lastErr
	}

	log.Infof("%s: ready in %s", m.cfg.Name, time.Since(start).Round(time.Millisecond))

	// Identity mismatch is logged, not fatal.
	if err := seq.Dev().SelfTest(); err != nil {
		log.Warnf("%s: self-test failed: %v", m.cfg.Name, err)
	} else if rev, err := seq.Dev().RevisionID(); err == nil {
		log.Infof("%s: product 0x%02X rev 0x%02X", m.cfg.Name, pmw3901.ProductID, rev)
	}

	m.bus = bus
	m.seq = seq
	m.lastErr = nil
	return nil
}

// release tears down the sequencer and closes the bus. Requires mu.
func (m *FlowManager) release() error {
	var err error
	if m.seq != nil {
		m.seq.Teardown()
		m.seq = nil
	}
	if m.bus != nil {
		err = m.bus.Close()
		m.bus = nil
	}
	return err
}

// IsAvailable reports whether the sensor is initialized and ready.
func (m *FlowManager) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready()
}

// State returns the sequencer state, Uninitialized when nothing is bound.
func (m *FlowManager) State() pmw3901.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq == nil {
		if m.lastErr != nil {
			return pmw3901.Failed
		}
		return pmw3901.Uninitialized
	}
	return m.seq.State()
}

// LastError returns the error of the last failed initialization, if any.
func (m *FlowManager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Name returns the configured sensor name.
func (m *FlowManager) Name() string { return m.cfg.Name }

func (m *FlowManager) dev() (*pmw3901.Dev, error) {
	if !m.ready() {
		return nil, ErrNotReady
	}
	return m.seq.Dev(), nil
}

// ReadSample performs one latched motion readout.
func (m *FlowManager) ReadSample() (flow.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return flow.Sample{}, err
	}
	mot, err := d.ReadMotionQuality()
	if err != nil {
		return flow.Sample{}, fmt.Errorf("%s: motion read: %w", m.cfg.Name, err)
	}
	m.seqNo++
	return flow.Sample{
		Source: m.cfg.Name,
		Seq:    m.seqNo,
		DX:     mot.DX,
		DY:     mot.DY,
		Motion: mot.Moved(),
		Squal:  mot.Squal,
		Time:   m.now(),
	}, nil
}

// Next implements flow.Source.
func (m *FlowManager) Next() (flow.Sample, error) { return m.ReadSample() }

// ReadDelta returns the raw latched deltas without quality.
func (m *FlowManager) ReadDelta() (int16, int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return 0, 0, err
	}
	return d.DeltaXY()
}

// Identity returns the product and revision IDs.
func (m *FlowManager) Identity() (product, revision byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return 0, 0, err
	}
	if product, err = d.ProductID(); err != nil {
		return 0, 0, err
	}
	if revision, err = d.RevisionID(); err != nil {
		return 0, 0, err
	}
	return product, revision, nil
}

// SelfTest checks both identity registers.
func (m *FlowManager) SelfTest() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return err
	}
	return d.SelfTest()
}

// ReadRegister reads one register, rejecting write-only addresses.
func (m *FlowManager) ReadRegister(addr byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return 0, err
	}
	return d.ReadRegister(addr)
}

// WriteRegister writes one register, rejecting read-only addresses. A write
// to Power_Up_Reset reruns the full initialization and a write to Shutdown
// powers the chip down, so State always matches the chip.
func (m *FlowManager) WriteRegister(addr, val byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return err
	}
	switch addr {
	case pmw3901.RegPowerUpReset:
		log.Infof("%s: reset requested via register write, reinitializing", m.cfg.Name)
		if err := m.release(); err != nil {
			log.Warnf("%s: close before reinit: %v", m.cfg.Name, err)
		}
		return m.bringUp()
	case pmw3901.RegShutdown:
		return m.shutdown(d)
	}
	return d.WriteRegister(addr, val)
}

// ReadAllRegisters reads every readable named register. Reading Motion
// latches and clears the pending deltas.
func (m *FlowManager) ReadAllRegisters() (map[byte]byte, error) {
	return m.readWhere(pmw3901.Register.CanRead)
}

// ExportRegisterConfig reads the registers that can be written back.
func (m *FlowManager) ExportRegisterConfig() (map[byte]byte, error) {
	return m.readWhere(func(r pmw3901.Register) bool { return r.CanRead() && r.CanWrite() })
}

func (m *FlowManager) readWhere(keep func(pmw3901.Register) bool) (map[byte]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return nil, err
	}
	out := make(map[byte]byte)
	for _, r := range pmw3901.Registers() {
		if !keep(r) || r.Addr == pmw3901.RegMotionBurst {
			continue
		}
		v, err := d.ReadRegister(r.Addr)
		if err != nil {
			return nil, fmt.Errorf("read 0x%02X: %w", r.Addr, err)
		}
		out[r.Addr] = v
	}
	return out, nil
}

// RegisterMap returns the register metadata for the debug UI.
func (m *FlowManager) RegisterMap() []RegisterInfo {
	return getPMW3901RegisterMap()
}

// Reinitialize releases the bus and runs the full sequence again.
func (m *FlowManager) Reinitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.release(); err != nil {
		log.Warnf("%s: close before reinit: %v", m.cfg.Name, err)
	}
	return m.bringUp()
}

// SetSPISpeed changes the bus clock and reinitializes the sensor.
func (m *FlowManager) SetSPISpeed(hz int64) error {
	if hz <= 0 || hz > config.MaxSPISpeedHz {
		return fmt.Errorf("spi speed %d Hz out of range (1-%d)", hz, config.MaxSPISpeedHz)
	}
	m.mu.Lock()
	m.speed = physic.Frequency(hz) * physic.Hertz
	m.mu.Unlock()
	return m.Reinitialize()
}

// GetSPISpeed returns the configured bus clock in Hz.
func (m *FlowManager) GetSPISpeed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.speed / physic.Hertz)
}

// Shutdown powers the chip down and releases the bus. Init brings it back.
func (m *FlowManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dev()
	if err != nil {
		return err
	}
	return m.shutdown(d)
}

func (m *FlowManager) shutdown(d *pmw3901.Dev) error {
	serr := d.Shutdown()
	if err := m.release(); err != nil && serr == nil {
		serr = err
	}
	return serr
}

// Close releases the bus without touching the chip.
func (m *FlowManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.release()
}
