package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/livewatch/internal/cache"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// CachedClient shares successful payloads between replicas polling the same
// job. Cache failures fall through to the upstream client; fetch errors are
// never cached.
type CachedClient struct {
	next  Client
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedClient wraps next. A non-positive ttl disables caching.
func NewCachedClient(next Client, c cache.Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{next: next, cache: c, ttl: ttl}
}

// Result serves a cached snapshot when one is fresh, else fetches and stores it.
func (c *CachedClient) Result(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	var snap models.JobSnapshot
	if c.lookup(ctx, cache.SnapshotKey(jobID), &snap) {
		if snap.Messages == nil {
			snap.Messages = map[string]string{}
		}
		return &snap, nil
	}

	fresh, err := c.next.Result(ctx, jobID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cache.SnapshotKey(jobID), fresh)
	return fresh, nil
}

// JobStatus is Result for the job-level status report.
func (c *CachedClient) JobStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error) {
	var report models.JobStatusReport
	if c.lookup(ctx, cache.StatusReportKey(jobID), &report) {
		return &report, nil
	}

	fresh, err := c.next.JobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cache.StatusReportKey(jobID), fresh)
	return fresh, nil
}

func (c *CachedClient) lookup(ctx context.Context, key string, v any) bool {
	if c.ttl <= 0 {
		return false
	}
	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("snapshot cache read failed", "key", key, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Warn("discarding corrupt cached payload", "key", key, "error", err)
		_ = c.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, v any) {
	if c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		slog.Warn("snapshot cache write failed", "key", key, "error", err)
	}
}

var _ Client = (*CachedClient)(nil)
