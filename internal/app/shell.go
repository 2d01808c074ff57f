package app

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/abiosoft/ishell"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/optical_flow/internal/config"
	"github.com/relabs-tech/optical_flow/internal/sensors"
)

// shellAction runs one shell command against the manager and returns the
// text to print.
type shellAction func(mgr *sensors.FlowManager, args []string) (string, error)

type shellCmd struct {
	name, help string
	run        shellAction
}

var shellCmds = []shellCmd{
	{"id", "print product and revision ID", shellID},
	{"read", "ADDR: read one register", shellRead},
	{"write", "ADDR VALUE: write one register", shellWrite},
	{"delta", "read and clear the motion deltas", shellDelta},
	{"sample", "read one motion sample with surface quality", shellSample},
	{"init", "reset and run the full initialization sequence", shellInit},
	{"shutdown", "power the chip down", shellShutdown},
	{"state", "print the initialization state", shellState},
	{"regs", "dump every readable named register", shellRegs},
	{"selftest", "check product ID against its inverse", shellSelfTest},
}

func shellID(mgr *sensors.FlowManager, _ []string) (string, error) {
	prod, rev, err := mgr.Identity()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("product 0x%02X revision 0x%02X", prod, rev), nil
}

func shellRead(mgr *sensors.FlowManager, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: read ADDR")
	}
	addr, err := parseByte(args[0])
	if err != nil {
		return "", fmt.Errorf("bad address %q", args[0])
	}
	v, err := mgr.ReadRegister(addr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%02X = 0x%02X", addr, v), nil
}

func shellWrite(mgr *sensors.FlowManager, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("usage: write ADDR VALUE")
	}
	addr, err := parseByte(args[0])
	if err != nil {
		return "", fmt.Errorf("bad address %q", args[0])
	}
	val, err := parseByte(args[1])
	if err != nil {
		return "", fmt.Errorf("bad value %q", args[1])
	}
	if err := mgr.WriteRegister(addr, val); err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%02X <- 0x%02X", addr, val), nil
}

func shellDelta(mgr *sensors.FlowManager, _ []string) (string, error) {
	dx, dy, err := mgr.ReadDelta()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("dx=%d dy=%d", dx, dy), nil
}

func shellSample(mgr *sensors.FlowManager, _ []string) (string, error) {
	s, err := mgr.ReadSample()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("dx=%d dy=%d motion=%t squal=%d", s.DX, s.DY, s.Motion, s.Squal), nil
}

func shellInit(mgr *sensors.FlowManager, _ []string) (string, error) {
	if err := mgr.Reinitialize(); err != nil {
		return "", err
	}
	return mgr.State().String(), nil
}

func shellShutdown(mgr *sensors.FlowManager, _ []string) (string, error) {
	if err := mgr.Shutdown(); err != nil {
		return "", err
	}
	return "shut down, run init to wake", nil
}

func shellState(mgr *sensors.FlowManager, _ []string) (string, error) {
	out := fmt.Sprintf("%s spi=%dHz", mgr.State(), mgr.GetSPISpeed())
	if err := mgr.LastError(); err != nil {
		out += " last error: " + err.Error()
	}
	return out, nil
}

func shellRegs(mgr *sensors.FlowManager, _ []string) (string, error) {
	regs, err := mgr.ReadAllRegisters()
	if err != nil {
		return "", err
	}
	names := map[string]string{}
	for _, r := range mgr.RegisterMap() {
		names[r.Address] = r.Name
	}
	addrs := make([]int, 0, len(regs))
	for a := range regs {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)

	var w bytes.Buffer
	for _, a := range addrs {
		key := fmt.Sprintf("0x%02X", a)
		fmt.Fprintf(&w, "%s %-22s 0x%02X\n", key, names[key], regs[byte(a)])
	}
	return w.String(), nil
}

func shellSelfTest(mgr *sensors.FlowManager, _ []string) (string, error) {
	if err := mgr.SelfTest(); err != nil {
		return "", err
	}
	return "ok", nil
}

// newShell builds the interactive shell around mgr.
func newShell(mgr *sensors.FlowManager) *ishell.Shell {
	shell := ishell.New()
	shell.SetPrompt("pmw3901 > ")
	for _, sc := range shellCmds {
		run := sc.run
		shell.AddCmd(&ishell.Cmd{
			Name: sc.name,
			Help: sc.help,
			Func: func(c *ishell.Context) {
				out, err := run(mgr, c.Args)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(out)
			},
		})
	}
	return shell
}

// RunShell opens the sensor and starts an interactive register shell. Any
// args are run as a single command instead.
func RunShell(args []string) error {
	cfg := config.Get()
	mgr := sensors.GetFlowManager()
	if err := mgr.Init(); err != nil {
		log.Warnf("sensor not ready (%v), use init to retry", err)
	}
	defer mgr.Close()

	shell := newShell(mgr)
	if len(args) > 0 {
		return shell.Process(args...)
	}
	shell.Printf("%s on %s, cs %s. Type help.\n", cfg.Sensor.Name, cfg.Sensor.SPIDevice, cfg.Sensor.CSPin)
	shell.Run()
	return nil
}
