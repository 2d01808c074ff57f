package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/optical_flow/internal/app"
	"github.com/relabs-tech/optical_flow/internal/config"
)

// flagBindings maps command flags onto config keys.
var flagBindings = map[string]string{
	"debug":    "debug",
	"mock":     "producer.mock",
	"interval": "producer.sample_interval_ms",
	"port":     "web.port",
	"serial":   "serial.port",
	"baud":     "serial.baud_rate",
}

// loadConfig runs before every command except init.
func loadConfig(cmd *cobra.Command, _ []string) error {
	v := config.NewViper()
	for flag, key := range flagBindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "_CONFIG")
	}
	if err := config.InitGlobalViper(v, path); err != nil {
		return err
	}

	if config.Get().Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	log.Debugf("using config: %+v", *config.Get())
	return nil
}

func newProduceCmd() *cobra.Command {
	c := &cobra.Command{
		Use:        "produce",
		SuggestFor: []string{"prod", "run"},
		Short:      "read the sensor and publish motion samples to MQTT",
		Long: `produce initializes the PMW3901 and publishes one JSON sample per tick
(or per MOTION edge when sensor.motion_line is set) on topics.motion.
A retained status message is kept on topics.status.`,
		Example: `  optiflow produce --config=/etc/optiflow/optiflow.yaml
  optiflow produce --mock --interval 100`,
		RunE: func(*cobra.Command, []string) error { return app.RunFlowProducer() },
	}
	c.Flags().Bool("mock", false, "publish a synthetic circle instead of reading the sensor")
	c.Flags().Int("interval", 300, "sample interval in milliseconds")
	return c
}

func newConsoleCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "console",
		Short: "print published motion samples",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mock, _ := cmd.Flags().GetBool("mock"); mock {
				return app.RunMockConsole(time.Duration(config.Get().Producer.SampleIntervalMS) * time.Millisecond)
			}
			return app.RunConsoleMQTT()
		},
	}
	c.Flags().Bool("mock", false, "print the mock source directly, no broker")
	c.Flags().Int("interval", 300, "mock sample interval in milliseconds")
	return c
}

func newWebCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "web",
		Short: "serve the latest motion sample and odometer over HTTP",
		RunE:  func(*cobra.Command, []string) error { return app.RunWeb() },
	}
	c.Flags().Int("port", 8080, "HTTP port")
	return c
}

func newDebugCmd() *cobra.Command {
	return &cobra.Command{
		Use:        "debug",
		SuggestFor: []string{"regs", "registers"},
		Short:      "serve the register debugger websocket",
		RunE:       func(*cobra.Command, []string) error { return app.RunRegisterDebug() },
	}
}

func newDisplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display",
		Short: "show live motion on an SSD1306 OLED",
		RunE:  func(*cobra.Command, []string) error { return app.RunDisplay() },
	}
}

func newSerialCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serial",
		Short: "mirror motion samples onto a UART",
		RunE:  func(*cobra.Command, []string) error { return app.RunSerialConsole() },
	}
	c.Flags().String("serial", "", "serial device, e.g. /dev/ttyUSB0")
	c.Flags().Int("baud", 115200, "baud rate")
	return c
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "shell [command args...]",
		Short:   "interactive register shell",
		Example: "  optiflow shell\n  optiflow shell read 0x00",
		RunE:    func(_ *cobra.Command, args []string) error { return app.RunShell(args) },
	}
}

func newProbeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:        "probe",
		SuggestFor: []string{"pro", "pr", "prob"},
		Short:      "check the sensor wiring and print a few samples",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, _ := cmd.Flags().GetInt("samples")
			every, _ := cmd.Flags().GetDuration("every")
			return app.RunProbe(n, every)
		},
	}
	c.Flags().IntP("samples", "n", 5, "number of samples to print")
	c.Flags().Duration("every", 100*time.Millisecond, "delay between samples")
	return c
}

// InitCfg writes a configuration template.
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwrite, _ := cmd.Flags().GetBool("yes")

	buf, err := config.Dump(config.Default())
	if err != nil {
		return err
	}
	if printFlag {
		_, err := cmd.OutOrStdout().Write(buf)
		return err
	}

	if _, err := os.Stat(outputPath); err == nil && !overwrite {
		return fmt.Errorf("%s exists, use --yes to overwrite", outputPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buf, 0o644); err != nil {
		return err
	}
	log.Infof("configuration written to %s", outputPath)
	return nil
}

func newInitCmd() *cobra.Command {
	c := &cobra.Command{
		Use:        "init",
		SuggestFor: []string{"ini", "in"},
		Short:      "init create a configuration template",
		Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
Otherwise it is written to --output (default ./optiflow.yaml).
If --yes / -y flag is present, an existing file is overwritten.`,
		Example: `  optiflow init --print
  optiflow init -o /etc/optiflow/optiflow.yaml -y`,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              InitCfg,
	}
	c.Flags().Bool("print", false, "print config to stdout")
	c.Flags().BoolP("yes", "y", false, "overwrite")
	c.Flags().StringP("output", "o", config.DefaultConfigName+".yaml", "output path")
	return c
}

func getRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "optiflow",
		Short: "PMW3901 optical flow sensor tools",
		Long: `optiflow drives a PMW3901 optical flow sensor over SPI and fans its motion
samples out over MQTT, HTTP, a serial line and an OLED.
Configuration is read from --config, then $OPTIFLOW_CONFIG, then
./optiflow.yaml, ~/.config/optiflow/optiflow.yaml, /etc/optiflow/optiflow.yaml.
OPTIFLOW_* environment variables override file values (OPTIFLOW_SENSOR_CS_PIN).`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
	root.PersistentFlags().String("config", "", "configuration file path")
	root.PersistentFlags().Bool("debug", false, "toggle debug logging")

	root.AddCommand(
		newProduceCmd(),
		newConsoleCmd(),
		newWebCmd(),
		newDebugCmd(),
		newDisplayCmd(),
		newSerialCmd(),
		newShellCmd(),
		newProbeCmd(),
		newInitCmd(),
	)
	return root
}

func Execute() {
	if err := getRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
