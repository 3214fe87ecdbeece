package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENTITYDOC_"

// Config is the complete entitydoc configuration.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Store      StoreConfig      `toml:"store"`
	History    HistoryConfig    `toml:"history"`
	Components ComponentsConfig `toml:"components"`
	Service    ServiceConfig    `toml:"service"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

// StoreConfig selects the entity store.
type StoreConfig struct {
	Driver    string `toml:"driver" validate:"oneof=memory file redis badger"`
	Path      string `toml:"path" validate:"required_if=Driver file,required_if=Driver badger InMemory false"`
	RedisAddr string `toml:"redis_addr" validate:"required_if=Driver redis"`
	RedisDB   int    `toml:"redis_db" validate:"gte=0,lte=15"`
	KeyPrefix string `toml:"key_prefix"`
	InMemory  bool   `toml:"in_memory"`

	// Watch unloads entities whose files are deleted on disk. File driver only.
	Watch bool `toml:"watch"`
}

// HistoryConfig bounds undo history.
type HistoryConfig struct {
	MaxEntries int `toml:"max_entries" validate:"gte=1"`
}

// ComponentsConfig lists component definition directories.
type ComponentsConfig struct {
	Dirs []string `toml:"dirs" validate:"dive,required"`
}

// ServiceConfig tunes the entity service.
type ServiceConfig struct {
	SaveConcurrency int `toml:"save_concurrency" validate:"gte=1,lte=64"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{
			Driver:    "memory",
			KeyPrefix: "entitydoc",
		},
		History: HistoryConfig{
			MaxEntries: 1000,
		},
		Service: ServiceConfig{
			SaveConcurrency: 4,
		},
	}
}

// Load reads the TOML file at path over the defaults, applies .env files
// and ENTITYDOC_* environment overrides, and validates the result.
// An empty path skips the file layer.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
		cfg.resolvePaths(filepath.Dir(path))
	}

	if err := LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(cfg)
	if err == nil {
		return nil
	}

	var decErr *toml.DecodeError
	if errors.As(err, &decErr) {
		row, col := decErr.Position()
		return &ParseError{Path: path, Line: row, Column: col, Message: decErr.Error(), Err: err}
	}
	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		return &ParseError{Path: path, Message: "unknown setting: " + strictErr.String(), Err: err}
	}
	return &ParseError{Path: path, Message: err.Error(), Err: err}
}

// resolvePaths makes relative paths in the file relative to its directory.
func (c *Config) resolvePaths(base string) {
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(base, c.Store.Path)
	}
	for i, dir := range c.Components.Dirs {
		if !filepath.IsAbs(dir) {
			c.Components.Dirs[i] = filepath.Join(base, dir)
		}
	}
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments it tries ".env" in the working directory.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// envSetting maps one environment variable onto the config.
type envSetting struct {
	path string
	set  func(c *Config, v string) error
}

// envMapping returns the environment variable mappings.
func envMapping() map[string]envSetting {
	str := func(path string, field func(*Config) *string) envSetting {
		return envSetting{path, func(c *Config, v string) error { *field(c) = v; return nil }}
	}
	num := func(path string, field func(*Config) *int) envSetting {
		return envSetting{path, func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(c) = n
			return nil
		}}
	}
	flag := func(path string, field func(*Config) *bool) envSetting {
		return envSetting{path, func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*field(c) = b
			return nil
		}}
	}

	return map[string]envSetting{
		EnvPrefix + "LOG_LEVEL":         str("log.level", func(c *Config) *string { return &c.Log.Level }),
		EnvPrefix + "LOG_FORMAT":        str("log.format", func(c *Config) *string { return &c.Log.Format }),
		EnvPrefix + "STORE_DRIVER":      str("store.driver", func(c *Config) *string { return &c.Store.Driver }),
		EnvPrefix + "STORE_PATH":        str("store.path", func(c *Config) *string { return &c.Store.Path }),
		EnvPrefix + "REDIS_ADDR":        str("store.redis_addr", func(c *Config) *string { return &c.Store.RedisAddr }),
		EnvPrefix + "REDIS_DB":          num("store.redis_db", func(c *Config) *int { return &c.Store.RedisDB }),
		EnvPrefix + "KEY_PREFIX":        str("store.key_prefix", func(c *Config) *string { return &c.Store.KeyPrefix }),
		EnvPrefix + "STORE_IN_MEMORY":   flag("store.in_memory", func(c *Config) *bool { return &c.Store.InMemory }),
		EnvPrefix + "STORE_WATCH":       flag("store.watch", func(c *Config) *bool { return &c.Store.Watch }),
		EnvPrefix + "HISTORY_MAX":       num("history.max_entries", func(c *Config) *int { return &c.History.MaxEntries }),
		EnvPrefix + "SAVE_CONCURRENCY":  num("service.save_concurrency", func(c *Config) *int { return &c.Service.SaveConcurrency }),
		EnvPrefix + "COMPONENT_DIRS": {"components.dirs", func(c *Config, v string) error {
			c.Components.Dirs = filepath.SplitList(v)
			return nil
		}},
	}
}

// ApplyEnv overrides settings from environment variables found by lookup.
// Empty values are treated as set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for env, setting := range envMapping() {
		v, ok := lookup(env)
		if !ok {
			continue
		}
		if err := setting.set(c, strings.TrimSpace(v)); err != nil {
			return &ParseError{Path: env, Message: fmt.Sprintf("invalid value for %s: %v", setting.path, err), Err: err}
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every setting and returns the first *ValidationError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	fe := fieldErrs[0]
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	return &ValidationError{Path: path, Rule: fe.Tag(), Value: fe.Value()}
}
