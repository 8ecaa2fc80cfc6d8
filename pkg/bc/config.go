package bc

// config.go follows the repo's functional-options pattern: a private config
// struct, a defaultConfig constructor, and Option funcs that mutate it,
// validated in applyOptions.

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Cache at construction time.
type Option func(*config)

type config struct {
	nBuffers  int
	nBuckets  int
	blockSize int

	driver BlockDevice

	logger   *zap.Logger
	registry *prometheus.Registry
}

func defaultConfig() *config {
	return &config{
		nBuffers:  64,
		nBuckets:  31,
		blockSize: 1024,
		driver:    NewMemDevice(1024, 0),
		logger:    zap.NewNop(),
	}
}

// WithBuffers overrides the default buffer pool size.
func WithBuffers(n int) Option {
	return func(c *config) { c.nBuffers = n }
}

// WithBuckets overrides the default bucket count (N_BUCKETS). Should be
// prime to spread hash() output evenly; construction rejects only a
// non-positive count, primality is not checked.
func WithBuckets(n int) Option {
	return func(c *config) { c.nBuckets = n }
}

// WithBlockSize overrides the default 1024-byte block size.
func WithBlockSize(n int) Option {
	return func(c *config) { c.blockSize = n }
}

// WithDriver plugs a BlockDevice. The default is an in-memory device with
// unlimited simulated devices.
func WithDriver(d BlockDevice) Option {
	return func(c *config) {
		if d != nil {
			c.driver = d
		}
	}
}

// WithLogger plugs an external zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

func applyOptions(cfg *config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.nBuffers <= 0 {
		return errors.New("bc: buffer count must be > 0")
	}
	if cfg.nBuckets <= 0 {
		return errors.New("bc: bucket count must be > 0")
	}
	if cfg.blockSize <= 0 {
		return errors.New("bc: block size must be > 0")
	}
	return nil
}
