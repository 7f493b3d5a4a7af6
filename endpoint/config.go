package endpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pior/wireloop/buffet"
)

// Config configures an Endpoint.
type Config struct {
	// MaxMessageSize is the buffering limit for one message. A message that
	// is still incomplete at this size is answered with 431 and the
	// connection is closed.
	MaxMessageSize int

	// ChunkSize is the size of the receive chunks leased from the pool.
	ChunkSize int

	// PoolSize is the number of chunks per shard.
	PoolSize int32

	// Shards is the number of chunk pools. Peers are spread across shards
	// by address.
	Shards int

	// ReadTimeout bounds the wait for one complete message. Zero disables.
	ReadTimeout time.Duration

	// WriteTimeout bounds the write of one response. Zero disables.
	WriteTimeout time.Duration

	// ReplyOnMalformed sends 400 before closing on malformed input.
	ReplyOnMalformed bool

	Breaker BreakerConfig
}

// DefaultConfig returns a configuration suitable for an HTTP/1.x style
// request head protocol.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:   16 * 1024,
		ChunkSize:        buffet.DefaultChunkSize,
		PoolSize:         256,
		Shards:           4,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReplyOnMalformed: true,
		Breaker:          DefaultBreakerConfig(),
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.MaxMessageSize <= 0:
		return errors.New("endpoint: max_message_size must be positive")
	case c.ChunkSize <= 0:
		return errors.New("endpoint: chunk_size must be positive")
	case c.PoolSize <= 0:
		return errors.New("endpoint: pool_size must be positive")
	case c.Shards <= 0:
		return errors.New("endpoint: shards must be positive")
	case c.ReadTimeout < 0 || c.WriteTimeout < 0:
		return errors.New("endpoint: timeouts must not be negative")
	}
	return c.Breaker.Validate()
}

type fileConfig struct {
	MaxMessageSize   int    `toml:"max_message_size"`
	ChunkSize        int    `toml:"chunk_size"`
	PoolSize         int32  `toml:"pool_size"`
	Shards           int    `toml:"shards"`
	ReadTimeout      string `toml:"read_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	ReplyOnMalformed bool   `toml:"reply_on_malformed"`

	Breaker struct {
		Enabled      bool    `toml:"enabled"`
		MaxRequests  uint32  `toml:"max_requests"`
		Interval     string  `toml:"interval"`
		Timeout      string  `toml:"timeout"`
		MinRequests  uint32  `toml:"min_requests"`
		FailureRatio float64 `toml:"failure_ratio"`
	} `toml:"breaker"`
}

// LoadConfig reads a TOML file. Keys absent from the file keep their
// DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load endpoint config: %w", err)
	}

	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("chunk_size") {
		cfg.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("pool_size") {
		cfg.PoolSize = raw.PoolSize
	}
	if meta.IsDefined("shards") {
		cfg.Shards = raw.Shards
	}
	if meta.IsDefined("read_timeout") {
		if cfg.ReadTimeout, err = parseDuration("read_timeout", raw.ReadTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("write_timeout") {
		if cfg.WriteTimeout, err = parseDuration("write_timeout", raw.WriteTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("reply_on_malformed") {
		cfg.ReplyOnMalformed = raw.ReplyOnMalformed
	}

	if meta.IsDefined("breaker", "enabled") {
		cfg.Breaker.Enabled = raw.Breaker.Enabled
	}
	if meta.IsDefined("breaker", "max_requests") {
		cfg.Breaker.MaxRequests = raw.Breaker.MaxRequests
	}
	if meta.IsDefined("breaker", "interval") {
		if cfg.Breaker.Interval, err = parseDuration("breaker.interval", raw.Breaker.Interval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("breaker", "timeout") {
		if cfg.Breaker.Timeout, err = parseDuration("breaker.timeout", raw.Breaker.Timeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("breaker", "min_requests") {
		cfg.Breaker.MinRequests = raw.Breaker.MinRequests
	}
	if meta.IsDefined("breaker", "failure_ratio") {
		cfg.Breaker.FailureRatio = raw.Breaker.FailureRatio
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load endpoint config: unknown key %q", undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
