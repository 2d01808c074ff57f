// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	AppName           = "optiflow"
	DefaultConfigName = "optiflow"
	EnvPrefix         = "OPTIFLOW"

	// MaxSPISpeedHz is the fastest SPI clock the PMW3901 accepts.
	MaxSPISpeedHz = 2_000_000
)

// Config holds all application configuration values.
type Config struct {
	Sensor        SensorConfig        `yaml:"sensor" mapstructure:"sensor"`
	MQTT          MQTTConfig          `yaml:"mqtt" mapstructure:"mqtt"`
	Topics        TopicsConfig        `yaml:"topics" mapstructure:"topics"`
	Producer      ProducerConfig      `yaml:"producer" mapstructure:"producer"`
	Web           WebConfig           `yaml:"web" mapstructure:"web"`
	RegisterDebug RegisterDebugConfig `yaml:"register_debug" mapstructure:"register_debug"`
	Display       DisplayConfig       `yaml:"display" mapstructure:"display"`
	Serial        SerialConfig        `yaml:"serial" mapstructure:"serial"`
	Debug         bool                `yaml:"debug" mapstructure:"debug"`
}

// SensorConfig describes where the PMW3901 is wired.
type SensorConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	SPIDevice  string `yaml:"spi_device" mapstructure:"spi_device"` // periph spireg name, e.g. "SPI0.0"
	CSPin      string `yaml:"cs_pin" mapstructure:"cs_pin"`         // periph gpioreg name, e.g. "GPIO8"
	SPISpeedHz int64  `yaml:"spi_speed_hz" mapstructure:"spi_speed_hz"`

	// Optional MOTION interrupt line (active low). MotionLine < 0 disables it.
	MotionChip string `yaml:"motion_chip" mapstructure:"motion_chip"`
	MotionLine int    `yaml:"motion_line" mapstructure:"motion_line"`
}

type MQTTConfig struct {
	Broker           string `yaml:"broker" mapstructure:"broker"`
	ClientIDProducer string `yaml:"client_id_producer" mapstructure:"client_id_producer"`
	ClientIDConsole  string `yaml:"client_id_console" mapstructure:"client_id_console"`
	ClientIDWeb      string `yaml:"client_id_web" mapstructure:"client_id_web"`
	ClientIDDisplay  string `yaml:"client_id_display" mapstructure:"client_id_display"`
	ClientIDSerial   string `yaml:"client_id_serial" mapstructure:"client_id_serial"`
}

type TopicsConfig struct {
	Motion string `yaml:"motion" mapstructure:"motion"`
	Status string `yaml:"status" mapstructure:"status"`
}

type ProducerConfig struct {
	SampleIntervalMS int  `yaml:"sample_interval_ms" mapstructure:"sample_interval_ms"`
	LogEvery         int  `yaml:"log_every" mapstructure:"log_every"` // log one tick line per N samples
	Mock             bool `yaml:"mock" mapstructure:"mock"`
}

type WebConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
}

type RegisterDebugConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// Comma separated addresses or ranges, e.g. "0x3B,0x40-0x4F". Empty blocks all writes.
	AllowedWriteRanges string `yaml:"allowed_write_ranges" mapstructure:"allowed_write_ranges"`
	MinSPISpeedHz      int64  `yaml:"min_spi_speed_hz" mapstructure:"min_spi_speed_hz"`
	MaxSPISpeedHz      int64  `yaml:"max_spi_speed_hz" mapstructure:"max_spi_speed_hz"`
}

type DisplayConfig struct {
	I2CBus           string `yaml:"i2c_bus" mapstructure:"i2c_bus"`
	I2CAddr          uint16 `yaml:"i2c_addr" mapstructure:"i2c_addr"`
	UpdateIntervalMS int    `yaml:"update_interval_ms" mapstructure:"update_interval_ms"`
}

type SerialConfig struct {
	Port     string `yaml:"port" mapstructure:"port"`
	BaudRate int    `yaml:"baud_rate" mapstructure:"baud_rate"`
}

var (
	globalConfig *Config
	globalErr    error
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// NewViper returns a viper instance carrying every default and reading
// OPTIFLOW_* environment overrides (OPTIFLOW_SENSOR_CS_PIN, ...).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("sensor.name", "pmw3901")
	v.SetDefault("sensor.spi_device", "SPI0.0")
	v.SetDefault("sensor.cs_pin", "GPIO8")
	v.SetDefault("sensor.spi_speed_hz", MaxSPISpeedHz)
	v.SetDefault("sensor.motion_chip", "gpiochip0")
	v.SetDefault("sensor.motion_line", -1)

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id_producer", "")
	v.SetDefault("mqtt.client_id_console", "")
	v.SetDefault("mqtt.client_id_web", "")
	v.SetDefault("mqtt.client_id_display", "")
	v.SetDefault("mqtt.client_id_serial", "")

	v.SetDefault("topics.motion", "optical_flow/motion")
	v.SetDefault("topics.status", "optical_flow/status")

	v.SetDefault("producer.sample_interval_ms", 300)
	v.SetDefault("producer.log_every", 10)
	v.SetDefault("producer.mock", false)

	v.SetDefault("web.port", 8080)
	v.SetDefault("web.static_dir", "web")

	v.SetDefault("register_debug.port", 8081)
	v.SetDefault("register_debug.allowed_write_ranges", "")
	v.SetDefault("register_debug.min_spi_speed_hz", 100_000)
	v.SetDefault("register_debug.max_spi_speed_hz", MaxSPISpeedHz)

	v.SetDefault("display.i2c_bus", "")
	v.SetDefault("display.i2c_addr", 0x3C)
	v.SetDefault("display.update_interval_ms", 200)

	v.SetDefault("serial.port", "/dev/serial0")
	v.SetDefault("serial.baud_rate", 115200)

	v.SetDefault("debug", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file at path. An empty path searches the
// working directory, ~/.config/optiflow and /etc/optiflow, and falls back to
// defaults when nothing is found.
func Load(path string) (*Config, error) {
	return LoadViper(NewViper(), path)
}

// LoadViper is Load on a caller-prepared viper (flags already bound).
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/" + AppName)
		v.AddConfigPath("/etc/" + AppName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyClientIDs()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = NewViper().Unmarshal(cfg)
	return cfg
}

// Dump renders cfg as a YAML config file.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func (c *Config) applyClientIDs() {
	ids := []struct {
		dst  *string
		role string
	}{
		{&c.MQTT.ClientIDProducer, "producer"},
		{&c.MQTT.ClientIDConsole, "console"},
		{&c.MQTT.ClientIDWeb, "web"},
		{&c.MQTT.ClientIDDisplay, "display"},
		{&c.MQTT.ClientIDSerial, "serial"},
	}
	for _, id := range ids {
		if *id.dst == "" {
			*id.dst = DefaultClientID(id.role)
		}
	}
}

// DefaultClientID derives a stable MQTT client ID for role on this machine.
func DefaultClientID(role string) string {
	id, err := machineid.ProtectedID(AppName)
	if err != nil || len(id) < 8 {
		return AppName + "-" + role
	}
	return AppName + "-" + role + "-" + id[:8]
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if !c.Producer.Mock {
		if c.Sensor.SPIDevice == "" {
			return fmt.Errorf("sensor.spi_device is required")
		}
		if c.Sensor.CSPin == "" {
			return fmt.Errorf("sensor.cs_pin is required")
		}
	}
	if c.Sensor.SPISpeedHz <= 0 || c.Sensor.SPISpeedHz > MaxSPISpeedHz {
		return fmt.Errorf("sensor.spi_speed_hz must be 1-%d, got %d", MaxSPISpeedHz, c.Sensor.SPISpeedHz)
	}
	if c.Sensor.MotionLine >= 0 && c.Sensor.MotionChip == "" {
		return fmt.Errorf("sensor.motion_chip is required when sensor.motion_line is set")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Topics.Motion == "" {
		return fmt.Errorf("topics.motion is required")
	}
	if c.Producer.SampleIntervalMS <= 0 {
		return fmt.Errorf("producer.sample_interval_ms must be > 0")
	}
	if c.RegisterDebug.MinSPISpeedHz <= 0 || c.RegisterDebug.MinSPISpeedHz > c.RegisterDebug.MaxSPISpeedHz {
		return fmt.Errorf("register_debug.min_spi_speed_hz must be > 0 and <= max_spi_speed_hz")
	}
	if c.RegisterDebug.MaxSPISpeedHz > MaxSPISpeedHz {
		return fmt.Errorf("register_debug.max_spi_speed_hz must be <= %d", MaxSPISpeedHz)
	}
	if c.Display.UpdateIntervalMS <= 0 {
		return fmt.Errorf("display.update_interval_ms must be > 0")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be > 0")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads; later calls return its error.
func InitGlobal(configPath string) error {
	return InitGlobalViper(NewViper(), configPath)
}

// InitGlobalViper is InitGlobal with a caller-prepared viper.
func InitGlobalViper(v *viper.Viper, configPath string) error {
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, globalErr = LoadViper(v, configPath)
	})
	return globalErr
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
