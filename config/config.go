// Package config loads isolate configuration from TOML.
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/opcore/codec"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/permission"
)

// Config is the top level of an opsh.toml file.
type Config struct {
	Codec       string      `toml:"codec"`
	LogLevel    string      `toml:"log_level"`
	Permissions Permissions `toml:"permissions"`
	Unstable    bool        `toml:"unstable"`
	Prompt      bool        `toml:"prompt"`
}

// Permissions pre-authorizes capabilities.
type Permissions struct {
	AllowRead     []string `toml:"allow_read"`
	AllowWrite    []string `toml:"allow_write"`
	AllowNet      []string `toml:"allow_net"`
	AllowAll      bool     `toml:"allow_all"`
	AllowReadAll  bool     `toml:"allow_read_all"`
	AllowWriteAll bool     `toml:"allow_write_all"`
	AllowNetAll   bool     `toml:"allow_net_all"`
	AllowEnv      bool     `toml:"allow_env"`
	AllowRun      bool     `toml:"allow_run"`
	AllowHrtime   bool     `toml:"allow_hrtime"`
	AllowPlugin   bool     `toml:"allow_plugin"`
}

// Default returns the configuration used when no file is given: JSON
// control payloads, nothing pre-authorized.
func Default() *Config {
	return &Config{
		Codec:    "json",
		LogLevel: "info",
		Prompt:   true,
	}
}

// Load reads and validates a TOML file. Keys missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "cannot read "+path)
	}
	return Parse(data)
}

// Parse decodes and validates TOML text. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse error")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := codec.ByName(c.Codec); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid log_level")
	}
	for _, host := range c.Permissions.AllowNet {
		if host == "" || host == "*" {
			continue
		}
		if _, err := permission.NetScope(host); err != nil {
			return err
		}
	}
	return nil
}

// ControlCodec returns the configured codec.
func (c *Config) ControlCodec() codec.Codec {
	cd, err := codec.ByName(c.Codec)
	if err != nil {
		return codec.JSON{}
	}
	return cd
}

// Level returns the configured log level.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// PermissionOptions converts the permissions table.
func (c *Config) PermissionOptions() permission.Options {
	p := c.Permissions
	opts := permission.Options{
		AllowRead:   p.AllowRead,
		AllowWrite:  p.AllowWrite,
		AllowNet:    p.AllowNet,
		AllowAll:    p.AllowAll,
		AllowEnv:    p.AllowEnv,
		AllowRun:    p.AllowRun,
		AllowHrtime: p.AllowHrtime,
		AllowPlugin: p.AllowPlugin,
	}
	if p.AllowReadAll {
		opts.AllowRead = append(opts.AllowRead, "*")
	}
	if p.AllowWriteAll {
		opts.AllowWrite = append(opts.AllowWrite, "*")
	}
	if p.AllowNetAll {
		opts.AllowNet = append(opts.AllowNet, "*")
	}
	return opts
}
