package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/pkg/cache"
	"github.com/c360/trajstream/source"
)

// Duration is a time.Duration that reads and writes duration strings such
// as "66ms" or "45s". Integer nanoseconds are accepted as well.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats the duration
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts duration strings and integer nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		return d.parse(str)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be either a string (e.g. '66ms') or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts duration strings and integer nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the complete pipeline configuration.
type Config struct {
	Cache    cache.Config   `json:"cache" yaml:"cache"`
	Remote   RemoteConfig   `json:"remote" yaml:"remote"`
	Client   ClientConfig   `json:"client" yaml:"client"`
	File     FileConfig     `json:"file" yaml:"file"`
	Playback PlaybackConfig `json:"playback" yaml:"playback"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// RemoteConfig configures the websocket simulator source.
type RemoteConfig struct {
	URL              string   `json:"url,omitempty" yaml:"url,omitempty"`
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout     Duration `json:"write_timeout" yaml:"write_timeout"`
	QueueSize        int      `json:"queue_size" yaml:"queue_size"`
}

// ClientConfig configures the in-process simulation source.
type ClientConfig struct {
	TickInterval Duration `json:"tick_interval" yaml:"tick_interval"`
	Agents       int      `json:"agents" yaml:"agents"`
}

// FileConfig configures the trajectory file source.
type FileConfig struct {
	Path         string   `json:"path,omitempty" yaml:"path,omitempty"`
	TickInterval Duration `json:"tick_interval" yaml:"tick_interval"`
}

// PlaybackConfig configures the playback controller and the event channel
// it drains.
type PlaybackConfig struct {
	SeekTimeout Duration `json:"seek_timeout" yaml:"seek_timeout"`
	EventBuffer int      `json:"event_buffer" yaml:"event_buffer"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Cache: cache.DefaultConfig(),
		Remote: RemoteConfig{
			HandshakeTimeout: Duration(45 * time.Second),
			WriteTimeout:     Duration(10 * time.Second),
			QueueSize:        256,
		},
		Client: ClientConfig{
			TickInterval: Duration(source.DefaultTickInterval),
			Agents:       8,
		},
		File: FileConfig{
			TickInterval: Duration(source.DefaultTickInterval),
		},
		Playback: PlaybackConfig{
			EventBuffer: 64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}

	if c.Remote.URL != "" && !strings.HasPrefix(c.Remote.URL, "ws://") && !strings.HasPrefix(c.Remote.URL, "wss://") {
		return invalid(fmt.Sprintf("remote.url must use ws:// or wss://, got %q", c.Remote.URL))
	}
	if c.Remote.HandshakeTimeout < 0 || c.Remote.WriteTimeout < 0 {
		return invalid("remote timeouts must not be negative")
	}
	if c.Remote.QueueSize < 0 {
		return invalid(fmt.Sprintf("remote.queue_size must not be negative, got %d", c.Remote.QueueSize))
	}

	if c.Client.TickInterval < 0 {
		return invalid("client.tick_interval must not be negative")
	}
	if c.Client.Agents < 0 {
		return invalid(fmt.Sprintf("client.agents must not be negative, got %d", c.Client.Agents))
	}
	if c.File.TickInterval < 0 {
		return invalid("file.tick_interval must not be negative")
	}

	if c.Playback.SeekTimeout < 0 {
		return invalid("playback.seek_timeout must not be negative")
	}
	if c.Playback.EventBuffer < 0 {
		return invalid(fmt.Sprintf("playback.event_buffer must not be negative, got %d", c.Playback.EventBuffer))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return invalid(fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}

	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", msg)
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	// Every section is a value type.
	copied := *c
	return &copied
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Update", "nil config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config", "Update", "validate")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
