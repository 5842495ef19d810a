package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	clog "github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/goKeySwap/keymaps"
	"github.com/goKeySwap/tap"
)

const (
	appName   = "goKeySwap"
	envPrefix = "gokeyswap"

	// viper's default "." would split mapping names such as "caps.lock"
	keyDelimiter = "::"
)

// Mapping is one named substitution as written in the config file
type Mapping struct {
	From int `mapstructure:"from" yaml:"from"`
	To   int `mapstructure:"to" yaml:"to"`
}

// LogConfig controls the logging sink
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DeviceConfig selects the input devices on linux
type DeviceConfig struct {
	Uinput string   `mapstructure:"uinput" yaml:"uinput"`
	Names  []string `mapstructure:"names" yaml:"names,omitempty"`
}

// Config is the persisted configuration
type Config struct {
	Enabled bool               `mapstructure:"enabled" yaml:"enabled"`
	Log     LogConfig          `mapstructure:"log" yaml:"log"`
	Mapping map[string]Mapping `mapstructure:"mapping" yaml:"mapping"`
	Device  DeviceConfig       `mapstructure:"device" yaml:"device"`
}

// Default returns the configuration written on first start
func Default() Config {
	mappings := make(map[string]Mapping)
	for name, m := range keymaps.Defaults() {
		mappings[name] = Mapping{From: int(m.From), To: int(m.To)}
	}
	return Config{
		Enabled: true,
		Log:     LogConfig{Level: "info"},
		Mapping: mappings,
		Device:  DeviceConfig{Uinput: tap.DefaultHookConfig().UinputPath},
	}
}

// Validate checks codes and the log level
func (c Config) Validate() error {
	var errs []error
	for _, name := range c.names() {
		m := c.Mapping[name]
		if name == "" || strings.Contains(name, keyDelimiter) {
			errs = append(errs, fmt.Errorf("mapping %q: name must not be empty or contain %q", name, keyDelimiter))
		}
		if m.From < 0 || m.From > math.MaxUint16 {
			errs = append(errs, fmt.Errorf("mapping %q: from %d is not a key code", name, m.From))
		}
		if m.To < 0 || m.To > math.MaxUint16 {
			errs = append(errs, fmt.Errorf("mapping %q: to %d is not a key code", name, m.To))
		}
	}
	if _, err := clog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) names() []string {
	names := make([]string, 0, len(c.Mapping))
	for name := range c.Mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mappings returns the pairs ordered by mapping name. Call Validate first;
// out-of-range codes are skipped.
func (c Config) Mappings() []keymaps.KeyMapping {
	pairs := make([]keymaps.KeyMapping, 0, len(c.Mapping))
	for _, name := range c.names() {
		m := c.Mapping[name]
		if m.From < 0 || m.From > math.MaxUint16 || m.To < 0 || m.To > math.MaxUint16 {
			continue
		}
		pairs = append(pairs, keymaps.KeyMapping{From: uint16(m.From), To: uint16(m.To)})
	}
	return pairs
}

// Named returns the mappings keyed by name, for display
func (c Config) Named() []NamedMapping {
	out := make([]NamedMapping, 0, len(c.Mapping))
	for _, name := range c.names() {
		out = append(out, NamedMapping{Name: name, Mapping: c.Mapping[name]})
	}
	return out
}

// NamedMapping pairs a mapping with its config key
type NamedMapping struct {
	Name string
	Mapping
}

// HookConfig converts the device section into hook settings
func (c Config) HookConfig() tap.HookConfig {
	return tap.HookConfig{
		UinputPath:  c.Device.Uinput,
		DeviceNames: c.Device.Names,
	}
}

// Source adapts a Config to tap.Source
func (c Config) Source() tap.Source {
	return source{c}
}

type source struct {
	c Config
}

func (s source) Mappings() []keymaps.KeyMapping { return s.c.Mappings() }
func (s source) Enabled() bool                  { return s.c.Enabled }

// DefaultPath returns ~/.config/goKeySwap/config.yaml
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Dir returns ~/.config/goKeySwap on every platform
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// WriteDefault writes the default configuration to path
func WriteDefault(path string) error {
	cfg := Default()
	return Write(path, &cfg)
}

// Write serializes c to path, creating parent directories
func Write(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	return os.WriteFile(path, data, 0644)
}

// Loader reads the config file and keeps watching it
type Loader struct {
	path string
	v    *viper.Viper
	mu   sync.Mutex
}

// NewLoader creates a loader for path. An empty path means DefaultPath.
func NewLoader(path string) (*Loader, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	d := Default()
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("log"+keyDelimiter+"level", d.Log.Level)
	v.SetDefault("device"+keyDelimiter+"uinput", d.Device.Uinput)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	return &Loader{path: path, v: v}, nil
}

// Path returns the file the loader reads
func (l *Loader) Path() string {
	return l.path
}

// Load reads the file. A missing file is created with the defaults first.
// Load returns whether the file was created.
func (l *Loader) Load() (Config, bool, error) {
	created := false
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(l.path); err != nil {
			return Config{}, false, fmt.Errorf("create default config: %w", err)
		}
		created = true
	}
	cfg, err := l.read()
	return cfg, created, err
}

func (l *Loader) read() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read %s: %w", l.path, err)
	}
	return l.decode()
}

// decode unmarshals what viper last read. Callers hold l.mu.
func (l *Loader) decode() (Config, error) {
	var c Config
	// unknown keys are errors so a misspelled or nested mapping is not
	// silently decoded as 0 -> 0
	if err := l.v.UnmarshalExact(&c); err != nil {
		return c, fmt.Errorf("parse %s: %w", l.path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config %s: %w", l.path, err)
	}
	return c, nil
}

// Reload reads the file again
func (l *Loader) Reload() (Config, error) {
	return l.read()
}

// Watch calls fn whenever the config file is written or replaced, and with
// any error the watcher reports. fn runs on the watcher goroutine and must
// not read the file itself; callers pick up the change with Reload, which
// keeps every access to the viper instance under l.mu.
func (l *Loader) Watch(fn func(error)) (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", l.path, err)
	}
	// editors replace the file, so watch the directory
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", l.path, err)
	}
	target := filepath.Clean(l.path)
	go func() {
		for {
			select {
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) == target && (e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
					fn(nil)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				fn(err)
			}
		}
	}()
	return w.Close, nil
}
