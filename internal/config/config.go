// Package config provides configuration management for mdview using Viper
// for loading from flags, MDVIEW_ environment variables and an optional
// .mdview.yaml file.
//
// Precedence, highest first: command-line flags, environment variables,
// config file, defaults. Validation failures are reported as config errors
// before any server starts.
package config

import (
	stderrors "errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mderrors "go-mdview/internal/errors"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Mode selects how updates reach the browser. It applies to the whole session.
type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

const (
	EnvPrefix      = "MDVIEW"
	configFileName = ".mdview"

	MinDebounce = 10 * time.Millisecond
	MaxDebounce = 2 * time.Second
)

type Config struct {
	Path         string        `mapstructure:"path" yaml:"path"`
	Mode         Mode          `mapstructure:"mode" yaml:"mode"`
	Refresh      int           `mapstructure:"refresh" yaml:"refresh,omitempty"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	Sanitize     bool          `mapstructure:"sanitize" yaml:"sanitize"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat    string        `mapstructure:"log_format" yaml:"log_format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Mode:         ModePush,
		PollInterval: 2 * time.Second,
		Host:         "127.0.0.1",
		Port:         0,
		Debounce:     100 * time.Millisecond,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// SetDefaults registers every key with viper so AutomaticEnv can see it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("path", "")
	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("refresh", 0)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("ping_interval", d.PingInterval)
	v.SetDefault("pong_timeout", d.PongTimeout)
	v.SetDefault("sanitize", d.Sanitize)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// flagKeys maps flag names onto config keys.
var flagKeys = map[string]string{
	"mode":          "mode",
	"refresh":       "refresh",
	"poll-interval": "poll_interval",
	"host":          "host",
	"port":          "port",
	"debounce":      "debounce",
	"ping-interval": "ping_interval",
	"pong-timeout":  "pong_timeout",
	"sanitize":      "sanitize",
	"log-level":     "log_level",
	"log-format":    "log_format",
}

// AddFlags declares the viewer flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("mode", string(d.Mode), "Update delivery mode (push|poll)")
	fs.IntP("refresh", "r", 0, "Enable poll mode with this interval in seconds")
	fs.Duration("poll-interval", d.PollInterval, "Poll interval in poll mode")
	fs.String("host", d.Host, "Host to bind to")
	fs.IntP("port", "p", d.Port, "Port to serve on (random if 0)")
	fs.Duration("debounce", d.Debounce, "Quiet period before a file change is rendered")
	fs.Duration("ping-interval", d.PingInterval, "Heartbeat period in push mode")
	fs.Duration("pong-timeout", d.PongTimeout, "Drop push clients silent for this long")
	fs.Bool("sanitize", d.Sanitize, "Sanitize rendered HTML")
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.LogFormat, "Log format (text, json)")
}

// BindFlags binds the flags declared by AddFlags to their config keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile loads cfgFile, or .mdview.yaml from the working directory when
// cfgFile is empty. A missing default file is not an error.
func ReadFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && stderrors.As(err, &notFound) {
			return nil
		}
		return mderrors.WithPath(mderrors.KindConfig, "read config", cfgFile, err)
	}
	return nil
}

// Load decodes v into a Config, normalizes it and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, mderrors.New(mderrors.KindConfig, "decode config", err)
	}

	cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if cfg.Refresh > 0 {
		cfg.Mode = ModePoll
		cfg.PollInterval = time.Duration(cfg.Refresh) * time.Second
	}

	if cfg.Path != "" {
		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, mderrors.WithPath(mderrors.KindConfig, "resolve path", cfg.Path, err)
		}
		cfg.Path = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values consumed by the viewer core.
func (c *Config) Validate() error {
	const op = "validate config"

	if c.Path == "" {
		return mderrors.Newf(mderrors.KindConfig, op, "file path is required")
	}
	switch c.Mode {
	case ModePush, ModePoll:
	default:
		return mderrors.Newf(mderrors.KindConfig, op, "mode must be push or poll, got %q", c.Mode)
	}
	if c.Refresh < 0 {
		return mderrors.Newf(mderrors.KindConfig, op, "refresh must be positive, got %d", c.Refresh)
	}
	if c.Mode == ModePoll && c.PollInterval <= 0 {
		return mderrors.Newf(mderrors.KindConfig, op, "poll interval must be > 0, got %s", c.PollInterval)
	}
	if c.Port < 0 || c.Port > 65535 {
		return mderrors.Newf(mderrors.KindConfig, op, "port must be within 0..65535, got %d", c.Port)
	}
	if c.Debounce < MinDebounce || c.Debounce > MaxDebounce {
		return mderrors.Newf(mderrors.KindConfig, op, "debounce must be within %s..%s, got %s", MinDebounce, MaxDebounce, c.Debounce)
	}
	if c.PingInterval <= 0 {
		return mderrors.Newf(mderrors.KindConfig, op, "ping interval must be > 0, got %s", c.PingInterval)
	}
	if c.PongTimeout <= c.PingInterval {
		return mderrors.Newf(mderrors.KindConfig, op, "pong timeout %s must exceed ping interval %s", c.PongTimeout, c.PingInterval)
	}
	if strings.TrimSpace(c.Host) == "" {
		return mderrors.Newf(mderrors.KindConfig, op, "host is required")
	}
	return nil
}

// Addr returns host:port for the listener.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
