package pmw3901

import (
	"errors"
	"fmt"
	"time"
)

type txn struct {
	header    byte
	hasHeader bool
	sent      []byte
	recv      int
}

type regWrite struct {
	reg byte
	val byte
}

// fakeBus models the chip's register file and records every transaction.
type fakeBus struct {
	regs map[byte]byte

	txns     []txn
	selected bool
	selects  int
	desels   int

	writes []regWrite
	reads  []byte
	events []string

	// failWriteAt fails the payload send of the n-th write (0-based); -1 disables.
	failWriteAt int
	writeCount  int
	failReceive error
	failSelect  error
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: map[byte]byte{}, failWriteAt: -1}
}

func (f *fakeBus) cur() *txn { return &f.txns[len(f.txns)-1] }

func (f *fakeBus) Select() error {
	if f.failSelect != nil {
		return f.failSelect
	}
	if f.selected {
		return errors.New("fake: nested select")
	}
	f.selected = true
	f.selects++
	f.txns = append(f.txns, txn{})
	return nil
}

func (f *fakeBus) Deselect() error {
	if !f.selected {
		return errors.New("fake: deselect without select")
	}
	f.selected = false
	f.desels++
	return nil
}

func (f *fakeBus) Send(p []byte) error {
	if !f.selected {
		return errors.New("fake: send without select")
	}
	t := f.cur()
	if !t.hasHeader {
		if len(p) != 1 {
			return fmt.Errorf("fake: header of %d bytes", len(p))
		}
		t.header, t.hasHeader = p[0], true
		return nil
	}
	if t.header&writeFlag == 0 {
		return errors.New("fake: payload on read transaction")
	}
	n := f.writeCount
	f.writeCount++
	if n == f.failWriteAt {
		return errors.New("fake: injected write failure")
	}
	t.sent = append(t.sent, p...)
	addr := t.header & addrMask
	for i, b := range p {
		f.regs[addr+byte(i)] = b
	}
	f.writes = append(f.writes, regWrite{reg: addr, val: p[0]})
	f.events = append(f.events, fmt.Sprintf("w %02X=%02X", addr, p[0]))
	return nil
}

func (f *fakeBus) Receive(p []byte) error {
	if !f.selected {
		return errors.New("fake: receive without select")
	}
	if f.failReceive != nil {
		return f.failReceive
	}
	t := f.cur()
	if !t.hasHeader || t.header&writeFlag != 0 {
		return errors.New("fake: receive on write transaction")
	}
	addr := t.header & addrMask
	for i := range p {
		p[i] = f.regs[addr+byte(i)]
	}
	t.recv += len(p)
	f.reads = append(f.reads, addr)
	return nil
}

// sleepRecorder replaces time.Sleep and logs into the bus event stream.
type sleepRecorder struct {
	bus    *fakeBus
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.sleeps = append(s.sleeps, d)
	if s.bus != nil {
		s.bus.events = append(s.bus.events, "sleep "+d.String())
	}
}

func boundTransport(bus Bus) *Transport {
	t := NewTransport()
	if err := t.Bind(bus); err != nil {
		panic(err)
	}
	return t
}
