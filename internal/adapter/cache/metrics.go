// Package cache keeps recently computed link metrics in memory so repeated
// reads within a short period do not hit the store again.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
	"github.com/vadimbarashkov/playlist-tracker/internal/metrics"
)

const minCacheSize = 512 * 1024

type metricsProvider interface {
	ComputeMetrics(ctx context.Context, linkID int64) (*entity.LinkMetrics, error)
}

type store interface {
	GetInt(key int64) ([]byte, error)
	SetInt(key int64, value []byte, expireSeconds int) error
}

type Config struct {
	Enabled bool
	SizeMB  int
	TTL     time.Duration
}

// MetricsCache wraps a metrics provider. Failed computations are not cached.
type MetricsCache struct {
	next   metricsProvider
	store  store
	ttl    int
	logger *slog.Logger
}

func NewMetricsCache(next metricsProvider, cfg Config, logger *slog.Logger) *MetricsCache {
	if !cfg.Enabled || cfg.SizeMB <= 0 {
		logger.Info("metrics cache disabled")
		return &MetricsCache{next: next, store: noopStore{}, logger: logger}
	}

	ttl := max(int(cfg.TTL.Seconds()), 1)
	logger.Info("metrics cache initialized",
		slog.Int("size_mb", cfg.SizeMB),
		slog.Int("ttl_seconds", ttl),
	)

	return &MetricsCache{
		next:   next,
		store:  freecache.NewCache(max(cfg.SizeMB*1024*1024, minCacheSize)),
		ttl:    ttl,
		logger: logger,
	}
}

func (c *MetricsCache) ComputeMetrics(ctx context.Context, linkID int64) (*entity.LinkMetrics, error) {
	const op = "adapter.cache.MetricsCache.ComputeMetrics"

	if raw, err := c.store.GetInt(linkID); err == nil {
		var m entity.LinkMetrics
		if err := json.Unmarshal(raw, &m); err == nil {
			metrics.MetricsCacheHits.Inc()
			return &m, nil
		}
	}

	metrics.MetricsCacheMisses.Inc()

	m, err := c.next.ComputeMetrics(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode link metrics", slog.String("error", err.Error()))
		return m, nil
	}

	if err := c.store.SetInt(linkID, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "failed to cache link metrics", slog.String("error", err.Error()))
	}

	return m, nil
}

type noopStore struct{}

func (noopStore) GetInt(int64) ([]byte, error)    { return nil, freecache.ErrNotFound }
func (noopStore) SetInt(int64, []byte, int) error { return nil }
