package embedpy

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// EnvPrefix prefixes the environment variables read by LoadConfig, e.g.
// EMBEDPY_COMPANION or EMBEDPY_PATH.
const EnvPrefix = "EMBEDPY_"

// Config configures a Bridge. The zero value is usable.
type Config struct {
	// Companion names the guest module imported by Start. It defaults to
	// DefaultCompanion.
	Companion string `koanf:"companion"`

	// Path is prepended to the options given to Start as sys.path entries.
	Path []string `koanf:"path"`

	// Argv becomes sys.argv[1:].
	Argv []string `koanf:"argv"`

	// Diag sets the process-wide diagnostic flags when the bridge is
	// created. It accepts the forms understood by ParseDiagFlags.
	Diag DiagFlags `koanf:"diag"`

	// NoRedirect leaves guest output going straight to the process stdout
	// and stderr instead of through the line-buffered sinks.
	NoRedirect bool `koanf:"no_redirect"`

	// Values is exposed to guest code as the companion's values dict.
	Values map[string]string `koanf:"values"`

	Modules    []Module    `koanf:"-"`
	Packages   []Package   `koanf:"-"`
	Stdout     io.Writer   `koanf:"-"`
	Stderr     io.Writer   `koanf:"-"`
	Logger     *zap.Logger `koanf:"-"`
	Serializer Serializer  `koanf:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Companion == "" {
		c.Companion = DefaultCompanion
	}
	if c.Serializer == nil {
		c.Serializer = MsgpackSerializer{}
	}
	return c
}

// UnmarshalText lets configuration files spell diag flags by name.
func (f *DiagFlags) UnmarshalText(text []byte) error {
	v, err := ParseDiagFlags(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// LoadConfig builds a Config from, in increasing precedence: defaults, the
// YAML file at path (skipped when path is empty or the file does not exist),
// EMBEDPY_* environment variables, and the flags in flags that were set.
// Flag names use dashes where keys use underscores ("no-redirect").
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		switch key {
		case "path", "argv":
			return key, filepath.SplitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return Config{}, err
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil)
		if err != nil {
			return Config{}, err
		}
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.Path) == 1 && cfg.Path[0] == "" {
		cfg.Path = nil
	}
	return cfg, nil
}
