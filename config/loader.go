package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/pkg/cache"
)

const (
	maxConfigSize = 1 << 20 // 1MB max config file size
	maxDepth      = 32      // maximum nesting depth of a config document
)

// DefaultEnvPrefix prefixes environment overrides, e.g. TRAJSTREAM_REMOTE_URL.
const DefaultEnvPrefix = "TRAJSTREAM"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix. An empty prefix
// disables environment overrides.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// Load reads a single YAML or JSON file over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	l := NewLoader()
	l.AddLayer(path)
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	base, err := toMap(DefaultConfig())
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := readLayer(path)
		if err != nil {
			return nil, err
		}
		base = deepMergeMaps(base, layer)
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(merged, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// readLayer decodes one file into a generic map. The format follows the
// extension: .yaml and .yml are YAML, everything else is JSON.
func readLayer(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", fmt.Sprintf("parse %s", path))
	}

	if depth(raw, 0) > maxDepth {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Load",
			fmt.Sprintf("%s nests deeper than %d levels", path, maxDepth))
	}
	return raw, nil
}

// safeReadFile reads a config file after checking its kind and size.
func safeReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "config", "Load", "empty config path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "stat config file")
	}
	if !info.Mode().IsRegular() {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Load",
			fmt.Sprintf("%s is not a regular file", path))
	}
	if info.Size() > maxConfigSize {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Load",
			fmt.Sprintf("config file too large: %d bytes > %d", info.Size(), maxConfigSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "read config file")
	}
	return data, nil
}

func depth(v any, level int) int {
	deepest := level
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if d := depth(child, level+1); d > deepest {
				deepest = d
			}
		}
	case []any:
		for _, child := range t {
			if d := depth(child, level+1); d > deepest {
				deepest = d
			}
		}
	}
	return deepest
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if l.envPrefix == "" {
		return nil
	}
	env := func(key string) string { return os.Getenv(l.envPrefix + "_" + key) }

	if val := env("REMOTE_URL"); val != "" {
		cfg.Remote.URL = val
	}
	if val := env("FILE_PATH"); val != "" {
		cfg.File.Path = val
	}
	if val := env("LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := env("LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := env("CACHE_ENABLED"); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapInvalid(err, "config", "Load", l.envPrefix+"_CACHE_ENABLED")
		}
		cfg.Cache.Enabled = enabled
	}
	if val := env("CACHE_MAX_SIZE"); val != "" {
		var size cache.ByteSize
		if err := json.Unmarshal([]byte(strconv.Quote(val)), &size); err != nil {
			return errors.WrapInvalid(err, "config", "Load", l.envPrefix+"_CACHE_MAX_SIZE")
		}
		cfg.Cache.MaxSize = size
	}
	return nil
}

// SaveToFile writes the configuration as YAML or JSON by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "config", "SaveToFile", "encode config")
	}
	return os.WriteFile(path, data, 0o600)
}
