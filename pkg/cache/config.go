package cache

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/c360/trajstream/errors"
)

// DefaultMaxSize is the default capacity in bytes.
const DefaultMaxSize = 512 << 20

// ByteSize is a size in bytes that unmarshals from either an integer or a
// human readable string such as "64MiB" or "1.5 GB".
type ByteSize int64

// String formats the size for humans
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// UnmarshalJSON accepts integers and size strings.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		return b.parse(str)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("size must be either a size string (e.g. '64MiB') or integer bytes")
	}
	*b = ByteSize(n)
	return nil
}

// UnmarshalYAML accepts integers and size strings.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	return b.parse(node.Value)
}

func (b *ByteSize) parse(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", s, err)
	}
	*b = ByteSize(n)
	return nil
}

// Config contains configuration for frame cache creation.
type Config struct {
	// Enabled turns buffering on. A disabled cache is always empty.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxSize is the capacity in estimated frame bytes.
	MaxSize ByteSize `json:"max_size" yaml:"max_size"`

	// TimeStep is the trajectory time step used for time matching. It is
	// normally set from trajectory info at runtime.
	TimeStep float64 `json:"time_step,omitempty" yaml:"time_step,omitempty"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		MaxSize: DefaultMaxSize,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.TimeStep < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("time_step must not be negative, got %v", c.TimeStep))
	}
	if !c.Enabled {
		return nil
	}
	if c.MaxSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("max_size must be positive, got %d", c.MaxSize))
	}
	return nil
}
