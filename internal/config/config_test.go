package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "optiflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, "SPI0.0", cfg.Sensor.SPIDevice)
	require.Equal(t, "GPIO8", cfg.Sensor.CSPin)
	require.EqualValues(t, MaxSPISpeedHz, cfg.Sensor.SPISpeedHz)
	require.Equal(t, -1, cfg.Sensor.MotionLine)
	require.Equal(t, 300, cfg.Producer.SampleIntervalMS)
	require.Equal(t, "optical_flow/motion", cfg.Topics.Motion)
	require.Equal(t, "optical_flow/status", cfg.Topics.Status)
	require.Equal(t, 8080, cfg.Web.Port)
	require.Equal(t, 8081, cfg.RegisterDebug.Port)
	require.EqualValues(t, 0x3C, cfg.Display.I2CAddr)
	require.Equal(t, 115200, cfg.Serial.BaudRate)
}

func TestLoadFile(t *testing.T) {
	path := writeTempConfig(t, `
sensor:
  spi_device: SPI1.0
  cs_pin: GPIO16
  spi_speed_hz: 1000000
  motion_line: 24
mqtt:
  broker: tcp://broker:1883
  client_id_producer: bench-producer
producer:
  sample_interval_ms: 50
display:
  i2c_addr: 0x3D
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "SPI1.0", cfg.Sensor.SPIDevice)
	require.Equal(t, "GPIO16", cfg.Sensor.CSPin)
	require.EqualValues(t, 1_000_000, cfg.Sensor.SPISpeedHz)
	require.Equal(t, 24, cfg.Sensor.MotionLine)
	require.Equal(t, "gpiochip0", cfg.Sensor.MotionChip)
	require.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	require.Equal(t, "bench-producer", cfg.MQTT.ClientIDProducer)
	require.True(t, strings.HasPrefix(cfg.MQTT.ClientIDConsole, "optiflow-console"))
	require.Equal(t, 50, cfg.Producer.SampleIntervalMS)
	require.EqualValues(t, 0x3D, cfg.Display.I2CAddr)
	// untouched sections keep defaults
	require.Equal(t, 8080, cfg.Web.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OPTIFLOW_SENSOR_CS_PIN", "GPIO25")
	t.Setenv("OPTIFLOW_PRODUCER_SAMPLE_INTERVAL_MS", "100")
	cfg, err := Load(writeTempConfig(t, "debug: true\n"))
	require.NoError(t, err)
	require.Equal(t, "GPIO25", cfg.Sensor.CSPin)
	require.Equal(t, 100, cfg.Producer.SampleIntervalMS)
	require.True(t, cfg.Debug)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"speed too high", "sensor:\n  spi_speed_hz: 4000000\n", "spi_speed_hz"},
		{"speed zero", "sensor:\n  spi_speed_hz: 0\n", "spi_speed_hz"},
		{"no cs pin", "sensor:\n  cs_pin: \"\"\n", "cs_pin"},
		{"no broker", "mqtt:\n  broker: \"\"\n", "mqtt.broker"},
		{"bad interval", "producer:\n  sample_interval_ms: 0\n", "sample_interval_ms"},
		{"motion chip missing", "sensor:\n  motion_line: 5\n  motion_chip: \"\"\n", "motion_chip"},
		{"display interval zero", "display:\n  update_interval_ms: 0\n", "update_interval_ms"},
		{"display interval negative", "display:\n  update_interval_ms: -50\n", "update_interval_ms"},
		{"debug speed range", "register_debug:\n  min_spi_speed_hz: 3000000\n", "min_spi_speed_hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tt.body))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMockSkipsWiring(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "producer:\n  mock: true\nsensor:\n  cs_pin: \"\"\n  spi_device: \"\"\n"))
	require.NoError(t, err)
	require.True(t, cfg.Producer.Mock)
}

func TestDumpRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Sensor.CSPin = "GPIO7"
	out, err := Dump(cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), "cs_pin: GPIO7")

	loaded, err := Load(writeTempConfig(t, string(out)))
	require.NoError(t, err)
	require.Equal(t, "GPIO7", loaded.Sensor.CSPin)
}
