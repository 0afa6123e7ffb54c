// Package config loads and validates the workstation daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// ConfigFormatVersion is the supported config file format version.
const ConfigFormatVersion = "0.1.0"

// DefaultConfigFile is the file name looked up next to the binary when no
// --config flag is given.
const DefaultConfigFile = "wizard.toml"

// DatabaseConfig holds the state store connection parameters. The
// repository database is shared across projects; project databases are
// derived from the project name at login.
type DatabaseConfig struct {
	DSN              string `toml:"dsn" validate:"required"`
	RepositoryName   string `toml:"repository_name" validate:"required"`
	StatementTimeout string `toml:"statement_timeout"`
}

// TeamBusConfig holds the studio-wide bus endpoint.
type TeamBusConfig struct {
	Host         string `toml:"host" validate:"required"`
	Port         int    `toml:"port" validate:"required,min=1,max=65535"`
	WriteTimeout string `toml:"write_timeout"`
}

// SubtaskConfig holds the background runtime parameters.
type SubtaskConfig struct {
	PoolSize int    `toml:"pool_size" validate:"min=0"`
	LogDir   string `toml:"log_dir"`
}

// GUIConfig holds the local endpoint GUI processes attach to.
type GUIConfig struct {
	Addr string `toml:"addr"`
}

// StatsConfig holds the work-time aggregation parameters.
type StatsConfig struct {
	Interval string `toml:"interval"`
}

// ConfigParam holds all configuration parameters for the workstation
// daemon.
type ConfigParam struct {
	FormatVersion string `toml:"format_version" validate:"required"`

	Database DatabaseConfig `toml:"database"`
	TeamBus  TeamBusConfig  `toml:"team_bus"`
	Subtask  SubtaskConfig  `toml:"subtask"`
	Stats    StatsConfig    `toml:"stats"`
	GUI      GUIConfig      `toml:"gui"`

	// CommunicateTimeout bounds one DCC plugin request.
	CommunicateTimeout string `toml:"communicate_timeout"`

	// FFmpegDir is prepended to PATH-like variables of launched DCCs.
	FFmpegDir string `toml:"ffmpeg_dir"`
}

var cfg *ConfigParam

// Config returns the loaded configuration.
func Config() *ConfigParam {
	return cfg
}

// LoadConfig reads, validates and installs the configuration file.
func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var c ConfigParam
	if err := toml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if err := ValidateConfig(&c); err != nil {
		return err
	}
	cfg = &c
	return nil
}

// ValidateConfig checks that all required values are present and sane.
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", c.FormatVersion)
	}
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, d := range []string{c.Database.StatementTimeout, c.TeamBus.WriteTimeout, c.Stats.Interval, c.CommunicateTimeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	return nil
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// StatementTimeout returns the per-statement database timeout.
func (c *ConfigParam) StatementTimeout() time.Duration {
	return durationOr(c.Database.StatementTimeout, 10*time.Second)
}

// BusWriteTimeout returns the team bus write deadline.
func (c *ConfigParam) BusWriteTimeout() time.Duration {
	return durationOr(c.TeamBus.WriteTimeout, 5*time.Second)
}

// StatsInterval returns the aggregation period of the stats scheduler.
func (c *ConfigParam) StatsInterval() time.Duration {
	return durationOr(c.Stats.Interval, 60*time.Second)
}

// RequestTimeout returns the deadline of one communicate request.
func (c *ConfigParam) RequestTimeout() time.Duration {
	return durationOr(c.CommunicateTimeout, 30*time.Second)
}

// PoolSize returns the subtask worker count, defaulting to the CPU count.
func (c *ConfigParam) PoolSize() int {
	if c.Subtask.PoolSize > 0 {
		return c.Subtask.PoolSize
	}
	return runtime.NumCPU()
}

// GUIAddr returns the loopback address of the GUI websocket surface.
func (c *ConfigParam) GUIAddr() string {
	if c.GUI.Addr != "" {
		return c.GUI.Addr
	}
	return "127.0.0.1:11411"
}

// SubtaskLogDir returns where retained subtask logs are written.
func (c *ConfigParam) SubtaskLogDir() string {
	if c.Subtask.LogDir != "" {
		return c.Subtask.LogDir
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "wizard-subtask-logs"
	}
	return filepath.Join(dir, "wizard", "subtask-logs")
}

// BusAddr returns the team bus host:port.
func (c *ConfigParam) BusAddr() string {
	return fmt.Sprintf("%s:%d", c.TeamBus.Host, c.TeamBus.Port)
}

// TestInit installs a configuration directly. Test helper.
func TestInit(c *ConfigParam) {
	cfg = c
}
