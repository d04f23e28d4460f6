package board

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/BYTE-6D65/liveboard/pkg/store"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds the tunable parameters of a board.
// Values can be set via:
//  1. Code (programmatic configuration)
//  2. Environment variables (LIVEBOARD_*, "." in keys becomes "_")
//  3. Config file (YAML)
//
// Precedence: Code > Env Vars > Config File > Defaults
type Config struct {
	// Frame loop
	FrameInterval time.Duration `mapstructure:"frame_interval"` // Period of Loop.Run

	// Automation
	StabilizationDelay    time.Duration `mapstructure:"stabilization_delay"`     // Threshold debounce window
	TargetPolicy          string        `mapstructure:"target_policy"`           // all | first | unique
	SoundThresholdDefault int           `mapstructure:"sound_threshold_default"` // Traffic band for new sound meters

	// Remote viewers
	Origin        string        `mapstructure:"origin"`         // Name this board writes under
	SkewTolerance time.Duration `mapstructure:"skew_tolerance"` // Remote clock offset accepted as-is

	// Buses
	ErrorBusBuffer int `mapstructure:"error_bus_buffer"` // Error event buffer per subscriber
	EventBusBuffer int `mapstructure:"event_bus_buffer"` // Widget event buffer per subscriber

	Store StoreConfig `mapstructure:"store"`

	// Metrics listen address for `liveboard run` ("" disables)
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// StoreConfig selects and tunes the widget store.
type StoreConfig struct {
	Driver       string `mapstructure:"driver"`        // memory | sqlite
	DSN          string `mapstructure:"dsn"`           // SQLite data source
	WriteQueue   int    `mapstructure:"write_queue"`   // Async write queue bound; 0 writes synchronously (replay only)
	JournalLimit int    `mapstructure:"journal_limit"` // Write records kept in memory; 0 keeps all
}

// DefaultConfig returns the configuration a board runs with when nothing is
// set.
func DefaultConfig() Config {
	return Config{
		FrameInterval: 16 * time.Millisecond,

		StabilizationDelay:    1 * time.Second,
		TargetPolicy:          store.TargetAll.String(),
		SoundThresholdDefault: 4,

		Origin:        "local",
		SkewTolerance: 500 * time.Millisecond,

		ErrorBusBuffer: 32,
		EventBusBuffer: 64,

		Store: StoreConfig{
			Driver:       DriverMemory,
			DSN:          "liveboard.db",
			WriteQueue:   256,
			JournalLimit: 1000,
		},
	}
}

// LoadConfig reads the configuration: defaults, then the YAML file at path
// (when path is empty, ./liveboard.yaml if present), then LIVEBOARD_*
// environment variables.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("LIVEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("liveboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// setDefaults registers every key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("frame_interval", d.FrameInterval)
	v.SetDefault("stabilization_delay", d.StabilizationDelay)
	v.SetDefault("target_policy", d.TargetPolicy)
	v.SetDefault("sound_threshold_default", d.SoundThresholdDefault)
	v.SetDefault("origin", d.Origin)
	v.SetDefault("skew_tolerance", d.SkewTolerance)
	v.SetDefault("error_bus_buffer", d.ErrorBusBuffer)
	v.SetDefault("event_bus_buffer", d.EventBusBuffer)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.write_queue", d.Store.WriteQueue)
	v.SetDefault("store.journal_limit", d.Store.JournalLimit)
	v.SetDefault("metrics_addr", d.MetricsAddr)
}

// Validate checks that configuration values are sensible.
func (c *Config) Validate() error {
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be > 0, got %s", c.FrameInterval)
	}

	if c.StabilizationDelay < 0 {
		return fmt.Errorf("stabilization delay must be >= 0, got %s", c.StabilizationDelay)
	}

	if _, err := store.ParseTargetPolicy(c.TargetPolicy); err != nil {
		return err
	}

	if c.SoundThresholdDefault < 0 || c.SoundThresholdDefault > 4 {
		return fmt.Errorf("sound threshold default must be a band 0-4, got %d", c.SoundThresholdDefault)
	}

	if c.Origin == "" {
		return errors.New("origin must not be empty")
	}

	if c.ErrorBusBuffer <= 0 || c.EventBusBuffer <= 0 {
		return fmt.Errorf("bus buffers must be > 0, got error=%d event=%d", c.ErrorBusBuffer, c.EventBusBuffer)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			return errors.New("sqlite store needs a dsn")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Store.WriteQueue < 0 || c.Store.JournalLimit < 0 {
		return fmt.Errorf("store limits must be >= 0, got queue=%d journal=%d", c.Store.WriteQueue, c.Store.JournalLimit)
	}

	return nil
}

// Policy returns the parsed target policy. Call after Validate.
func (c *Config) Policy() store.TargetPolicy {
	p, _ := store.ParseTargetPolicy(c.TargetPolicy)
	return p
}

// String returns a human-readable summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf(`Liveboard Configuration:
  Frame Loop:
    Interval: %s

  Automation:
    Stabilization:   %s
    Target Policy:   %s
    Sound Threshold: %d

  Viewer:
    Origin:         %s
    Skew Tolerance: %s

  Store:
    Driver:      %s
    Write Queue: %s
    Journal:     %s

  Metrics: %s
`,
		c.FrameInterval,
		c.StabilizationDelay,
		c.TargetPolicy,
		c.SoundThresholdDefault,
		c.Origin,
		c.SkewTolerance,
		formatDriver(c.Store),
		formatLimit(c.Store.WriteQueue, "synchronous"),
		formatLimit(c.Store.JournalLimit, "unbounded"),
		formatAddr(c.MetricsAddr),
	)
}

func formatDriver(s StoreConfig) string {
	if s.Driver == DriverSQLite {
		return fmt.Sprintf("sqlite (%s)", s.DSN)
	}
	return s.Driver
}

func formatLimit(n int, zero string) string {
	if n == 0 {
		return zero
	}
	return fmt.Sprintf("%d", n)
}

func formatAddr(addr string) string {
	if addr == "" {
		return "disabled"
	}
	return addr
}
