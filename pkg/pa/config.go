package pa

// config.go follows the repo's functional-options pattern: a private config
// struct, a defaultConfig constructor, and Option funcs that mutate it,
// validated in applyOptions.

import (
	"errors"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Pool at construction time.
type Option func(*config)

type config struct {
	pageSize   uintptr
	stealBatch int
	hartCount  int

	logger   *zap.Logger
	registry *prometheus.Registry
}

func defaultConfig() *config {
	return &config{
		pageSize:   4096,
		stealBatch: 64,
		hartCount:  runtime.NumCPU(),
		logger:     zap.NewNop(),
	}
}

// WithPageSize overrides the default 4096-byte page size. Must be a power of
// two.
func WithPageSize(n uintptr) Option {
	return func(c *config) { c.pageSize = n }
}

// WithStealBatch overrides the default steal batch (K = 64 in spec.md §3.1).
func WithStealBatch(n int) Option {
	return func(c *config) { c.stealBatch = n }
}

// WithHartCount overrides the default shard count (runtime.NumCPU()).
func WithHartCount(n int) Option {
	return func(c *config) { c.hartCount = n }
}

// WithLogger plugs an external zap.Logger. The pool never logs on the hot
// path (Alloc/Free); only init and steal events are emitted.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

func applyOptions(cfg *config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pageSize == 0 || cfg.pageSize&(cfg.pageSize-1) != 0 {
		return errors.New("pa: page size must be a power of two")
	}
	if cfg.stealBatch <= 0 {
		return errors.New("pa: steal batch must be > 0")
	}
	if cfg.hartCount <= 0 {
		return errors.New("pa: hart count must be > 0")
	}
	return nil
}
