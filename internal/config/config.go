// Package config loads md5crack settings from an optional config file,
// MD5CRACK_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "MD5CRACK"

type Config struct {
	Backend     string `mapstructure:"backend"`
	DeviceIndex int    `mapstructure:"device"`
	Workers     int    `mapstructure:"workers"`
	LogLevel    string `mapstructure:"log-level"`
	Progress    bool   `mapstructure:"progress"`

	Attack AttackC `mapstructure:",squash"`
}

type AttackC struct {
	Mode      string `mapstructure:"mode"`
	Wordlist  string `mapstructure:"wordlist"`
	Stream    bool   `mapstructure:"stream"`
	Charset   string `mapstructure:"charset"`
	MinLength int    `mapstructure:"min"`
	MaxLength int    `mapstructure:"max"`
	Seed      int64  `mapstructure:"seed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "auto")
	v.SetDefault("device", 0)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("log-level", "info")
	v.SetDefault("progress", true)
	v.SetDefault("mode", "wordlist")
	v.SetDefault("wordlist", "")
	v.SetDefault("stream", false)
	v.SetDefault("seed", 0)
	v.SetDefault("charset", "alnum")
	v.SetDefault("min", 1)
	v.SetDefault("max", 8)
}

// Load builds a Config. path may be empty, in which case only defaults,
// environment and flags apply. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errors.Wrap(err, "bind flags")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case "auto", "opencl", "host":
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Attack.Mode {
	case "wordlist", "incremental", "random":
	default:
		return errors.Errorf("unknown attack mode %q", c.Attack.Mode)
	}
	if c.Attack.MinLength > c.Attack.MaxLength {
		return errors.Errorf("min length %d exceeds max length %d", c.Attack.MinLength, c.Attack.MaxLength)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// Level is the parsed LogLevel. Validate has already rejected bad levels.
func (c *Config) Level() logrus.Level {
	lv, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lv
}
