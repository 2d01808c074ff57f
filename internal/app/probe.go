package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/relabs-tech/optical_flow/internal/sensors"
)

// probe initializes the sensor, checks its identity and prints a few
// samples. It fails on the first error.
func probe(mgr *sensors.FlowManager, w io.Writer, samples int, interval time.Duration) error {
	start := time.Now()
	if err := mgr.Init(); err != nil {
		fmt.Fprintf(w, "init: FAIL (%s): %v\n", mgr.State(), err)
		return err
	}
	fmt.Fprintf(w, "init: ok in %s, %d Hz\n", time.Since(start).Round(time.Millisecond), mgr.GetSPISpeed())

	prod, rev, err := mgr.Identity()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "product 0x%02X revision 0x%02X\n", prod, rev)

	if err := mgr.SelfTest(); err != nil {
		fmt.Fprintf(w, "self-test: FAIL: %v\n", err)
		return err
	}
	fmt.Fprintln(w, "self-test: ok")

	for i := 0; i < samples; i++ {
		if i > 0 {
			time.Sleep(interval)
		}
		s, err := mgr.ReadSample()
		if err != nil {
			return err
		}
		fmt.Fprint(w, FormatFlowLine(s))
	}
	return nil
}

// RunProbe checks the wiring of the configured sensor from the command line.
func RunProbe(samples int, interval time.Duration) error {
	mgr := sensors.GetFlowManager()
	defer mgr.Close()
	return probe(mgr, os.Stdout, samples, interval)
}
