// Package config loads the kiosk daemon configuration from defaults, an
// optional YAML file, and POUR_KIOSK_* environment variables, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration.
type Config struct {
	Device DeviceConfig `mapstructure:"device"`
	Sensor SensorConfig `mapstructure:"sensor"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	Screen ScreenConfig `mapstructure:"screen"`
	Loop   LoopConfig   `mapstructure:"loop"`
	Fault  FaultConfig  `mapstructure:"fault"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
}

// DeviceConfig identifies this kiosk.
type DeviceConfig struct {
	// ID is the device identity used in MQTT topics. Empty means derive one
	// at startup.
	ID string `mapstructure:"id"`
}

// SensorConfig configures the flow sensor input.
type SensorConfig struct {
	Chip           string  `mapstructure:"chip"`
	Pin            int     `mapstructure:"pin"`
	PulsesPerLiter float32 `mapstructure:"pulses_per_liter"`
	PulsesPerLPM   float32 `mapstructure:"pulses_per_lpm"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	BufferSize  int    `mapstructure:"buffer_size"`
	HeartbeatMs int64  `mapstructure:"heartbeat_ms"` // 0 disables heartbeats
}

// ScreenConfig configures the UX state machine.
type ScreenConfig struct {
	PayURL            string      `mapstructure:"pay_url"`
	FinishedTimeoutMs int64       `mapstructure:"finished_timeout_ms"`
	Debug             DebugConfig `mapstructure:"debug"`
}

// DebugConfig enables bench-test shortcuts. Never enable on a deployed
// kiosk.
type DebugConfig struct {
	TapToPour   bool `mapstructure:"tap_to_pour"`
	TapToFinish bool `mapstructure:"tap_to_finish"`
}

// LoopConfig configures the main loop.
type LoopConfig struct {
	TickMs int64 `mapstructure:"tick_ms"`
}

// FaultConfig configures the restart-of-last-resort policy.
type FaultConfig struct {
	Threshold int   `mapstructure:"threshold"`
	WindowMs  int64 `mapstructure:"window_ms"`
}

// HTTPConfig configures the status web server.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"` // "json" or "console"
	Output string        `mapstructure:"output"` // "stdout", "file", or "both"
	File   FileLogConfig `mapstructure:"file"`
}

// FileLogConfig configures rotated file output.
type FileLogConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxAge     int    `mapstructure:"max_age"`  // days
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration. path may be empty, in which case config.yaml is
// looked up in ./config and the working directory; a missing file is not an
// error, the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("POUR_KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults apply, whether the path was searched
		// for or given explicitly.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.id", "")

	v.SetDefault("sensor.chip", "gpiochip0")
	v.SetDefault("sensor.pin", 27)
	v.SetDefault("sensor.pulses_per_liter", 450)
	v.SetDefault("sensor.pulses_per_lpm", 7.5)

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic_prefix", "pour")
	v.SetDefault("mqtt.buffer_size", 64)
	v.SetDefault("mqtt.heartbeat_ms", 900000)

	v.SetDefault("screen.pay_url", "https://precisionpour.co.uk/pay")
	v.SetDefault("screen.finished_timeout_ms", 5000)
	v.SetDefault("screen.debug.tap_to_pour", false)
	v.SetDefault("screen.debug.tap_to_finish", false)

	v.SetDefault("loop.tick_ms", 100)

	v.SetDefault("fault.threshold", 10)
	v.SetDefault("fault.window_ms", 60000)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "pour-kiosk.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

func (c *Config) validate() error {
	if c.Loop.TickMs <= 0 {
		return fmt.Errorf("loop.tick_ms must be positive, got %d", c.Loop.TickMs)
	}
	if c.Sensor.PulsesPerLiter <= 0 {
		return fmt.Errorf("sensor.pulses_per_liter must be positive, got %g", c.Sensor.PulsesPerLiter)
	}
	if c.Sensor.PulsesPerLPM <= 0 {
		return fmt.Errorf("sensor.pulses_per_lpm must be positive, got %g", c.Sensor.PulsesPerLPM)
	}
	if c.Screen.FinishedTimeoutMs <= 0 {
		return fmt.Errorf("screen.finished_timeout_ms must be positive, got %d", c.Screen.FinishedTimeoutMs)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when mqtt is enabled")
	}
	return nil
}
