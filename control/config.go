// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Library configuration with environment and .env file overrides.

package control

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment keys understood by LoadConfig.
const (
	EnvForceCloseDelay = "LOOFAH_FORCE_CLOSE_DELAY"
	EnvMaxPackageSize  = "LOOFAH_DEFAULT_MAX_PKG_SIZE"
	EnvReadBufferSize  = "LOOFAH_READ_BUFFER_SIZE"
	EnvMaxEvents       = "LOOFAH_MAX_EVENTS"
	EnvBacklog         = "LOOFAH_BACKLOG"
	EnvLogLevel        = "LOOFAH_LOG_LEVEL"
	EnvLoopCPU         = "LOOFAH_LOOP_CPU"
)

// Defaults.
const (
	DefaultForceCloseDelay = 5000 * time.Millisecond
	DefaultMaxPackageSize  = 1 << 20
	DefaultReadBufferSize  = 4096
	DefaultMaxEvents       = 128
	DefaultBacklog         = 1024
	DefaultLogLevel        = "info"
	DefaultLoopCPU         = -1
)

// Config carries tunables for engines and package channels.
type Config struct {
	// ForceCloseDelay bounds how long a gracefully closing channel waits
	// for its write queue to drain. Zero closes immediately.
	ForceCloseDelay time.Duration
	// MaxPackageSize is the largest accepted frame payload.
	MaxPackageSize int
	// ReadBufferSize is the minimum free space offered to each socket read.
	ReadBufferSize int
	// MaxEvents caps the readiness events fetched per poll.
	MaxEvents int
	// Backlog is the listen queue length.
	Backlog  int
	LogLevel string
	// LoopCPU pins engine loops to one logical CPU; -1 leaves them free.
	LoopCPU  int
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ForceCloseDelay: DefaultForceCloseDelay,
		MaxPackageSize:  DefaultMaxPackageSize,
		ReadBufferSize:  DefaultReadBufferSize,
		MaxEvents:       DefaultMaxEvents,
		Backlog:         DefaultBacklog,
		LogLevel:        DefaultLogLevel,
		LoopCPU:         DefaultLoopCPU,
	}
}

// LoadConfig starts from DefaultConfig, applies values found in the given
// .env files (missing files are skipped) and then the process environment,
// which wins.
func LoadConfig(files ...string) (Config, error) {
	values := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range m {
			values[k] = v
		}
	}
	for _, k := range []string{EnvForceCloseDelay, EnvMaxPackageSize, EnvReadBufferSize, EnvMaxEvents, EnvBacklog, EnvLogLevel, EnvLoopCPU} {
		if v, ok := os.LookupEnv(k); ok {
			values[k] = v
		}
	}
	cfg := DefaultConfig()
	if err := cfg.apply(values); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) apply(values map[string]string) error {
	ints := []struct {
		key string
		dst *int
	}{
		{EnvMaxPackageSize, &c.MaxPackageSize},
		{EnvReadBufferSize, &c.ReadBufferSize},
		{EnvMaxEvents, &c.MaxEvents},
		{EnvBacklog, &c.Backlog},
		{EnvLoopCPU, &c.LoopCPU},
	}
	for _, it := range ints {
		v, ok := values[it.key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", it.key, err)
		}
		*it.dst = n
	}
	if v, ok := values[EnvForceCloseDelay]; ok {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvForceCloseDelay, err)
		}
		c.ForceCloseDelay = time.Duration(ms) * time.Millisecond
	}
	if v, ok := values[EnvLogLevel]; ok {
		c.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Validate rejects values the engines can not work with.
func (c Config) Validate() error {
	switch {
	case c.ForceCloseDelay < 0:
		return fmt.Errorf("force close delay %v is negative", c.ForceCloseDelay)
	case c.MaxPackageSize <= 0:
		return fmt.Errorf("max package size %d must be positive", c.MaxPackageSize)
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("read buffer size %d must be positive", c.ReadBufferSize)
	case c.MaxEvents <= 0:
		return fmt.Errorf("max events %d must be positive", c.MaxEvents)
	case c.Backlog <= 0:
		return fmt.Errorf("backlog %d must be positive", c.Backlog)
	case c.LoopCPU < -1:
		return fmt.Errorf("loop cpu %d is invalid", c.LoopCPU)
	}
	return nil
}
