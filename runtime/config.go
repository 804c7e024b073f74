package runtime

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/classbridge/errors"
)

// Options configures a Bridge.
type Options struct {
	// RecoverPanics turns panics in constructors, overrides and teardown
	// hooks into failures. When false a panic propagates and takes the
	// process down, which is the only other outcome an aborting override has.
	RecoverPanics bool
	// Declarations includes the process-wide registry.Declare list in OnLoad.
	Declarations bool
	// Reload allows Bridge.Reload.
	Reload bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		RecoverPanics: true,
		Declarations:  true,
		Reload:        true,
	}
}

// Config is the on-disk configuration, usually classbridge.toml:
//
//	[log]
//	level = "debug"
//	development = true
//
//	[dispatch]
//	recover_panics = true
//
//	[reload]
//	enabled = false
type Config struct {
	Log struct {
		Level       string `toml:"level"`
		Development bool   `toml:"development"`
	} `toml:"log"`
	Dispatch struct {
		RecoverPanics *bool `toml:"recover_panics"`
	} `toml:"dispatch"`
	Reload struct {
		Enabled *bool `toml:"enabled"`
	} `toml:"reload"`
	Declarations struct {
		Enabled *bool `toml:"enabled"`
	} `toml:"declarations"`
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "read config "+path)
	}
	return cfg, checkUndecoded(md, path)
}

// ParseConfig decodes TOML text. Unknown keys are rejected as in LoadConfig.
func ParseConfig(text string) (Config, error) {
	var cfg Config
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "parse config")
	}
	return cfg, checkUndecoded(md, "config")
}

func checkUndecoded(md toml.MetaData, source string) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("unknown config keys in %s: %v", source, undecoded))
	}
	return nil
}

// Options applies the configuration over DefaultOptions.
func (c Config) Options() Options {
	opts := DefaultOptions()
	if c.Dispatch.RecoverPanics != nil {
		opts.RecoverPanics = *c.Dispatch.RecoverPanics
	}
	if c.Reload.Enabled != nil {
		opts.Reload = *c.Reload.Enabled
	}
	if c.Declarations.Enabled != nil {
		opts.Declarations = *c.Declarations.Enabled
	}
	return opts
}

// Logger builds a zap logger from the [log] section. An empty level means
// no logging.
func (c Config) Logger() (*zap.Logger, error) {
	if c.Log.Level == "" {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "log level")
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
