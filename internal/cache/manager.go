package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/storage"
)

// MasterID is the cache slot of the merged pool across all sources.
const MasterID = "_master"

const (
	rawPrefix       = "raw/"
	clusteredPrefix = "clustered/"
	lastSyncKey     = "meta/last_sync"
)

// Clusterer turns a date-sorted article list into a pool.
type Clusterer interface {
	Build(articles []models.Article) models.ClusterPool
}

// RawRecord is the raw article list of one source. Present is false when the
// slot was never written or could not be decoded.
type RawRecord struct {
	Articles  []models.Article
	WrittenAt time.Time
	Present   bool
}

// Manager stores raw and clustered pools per source. A clustered pool is only
// served while it was written strictly after the raw list of the same source.
type Manager struct {
	store storage.Store
	now   func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces time.Now for write stamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager wraps a store.
func NewManager(store storage.Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Store exposes the underlying blob store.
func (m *Manager) Store() storage.Store { return m.store }

func rawKey(id string) string       { return rawPrefix + id }
func clusteredKey(id string) string { return clusteredPrefix + id }

// GetRaw loads the raw list of a source.
func (m *Manager) GetRaw(ctx context.Context, id string) (RawRecord, error) {
	data, err := m.store.Get(ctx, rawKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		metrics.CacheLookups.WithLabelValues("raw", "miss").Inc()
		return RawRecord{}, nil
	}
	if err != nil {
		return RawRecord{}, fmt.Errorf("read raw %s: %w", id, err)
	}
	at, err := m.store.ModTime(ctx, rawKey(id))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return RawRecord{}, fmt.Errorf("stamp raw %s: %w", id, err)
	}

	var articles []models.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		metrics.CacheLookups.WithLabelValues("raw", "corrupt").Inc()
		logger.Warn("Corrupted raw cache, resync needed", "source", id, "error", err)
		return RawRecord{WrittenAt: at}, nil
	}
	metrics.CacheLookups.WithLabelValues("raw", "hit").Inc()
	return RawRecord{Articles: articles, WrittenAt: at, Present: true}, nil
}

// PutRaw replaces the raw list of a source, which makes its clustered pool stale.
func (m *Manager) PutRaw(ctx context.Context, id string, articles []models.Article) error {
	if articles == nil {
		articles = []models.Article{}
	}
	data, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("encode raw %s: %w", id, err)
	}
	at := m.now()
	if prev, err := m.stamp(ctx, clusteredKey(id)); err != nil {
		return err
	} else if at.Before(prev) {
		at = prev
	}
	if err := m.store.Put(ctx, rawKey(id), data, at); err != nil {
		return fmt.Errorf("write raw %s: %w", id, err)
	}
	return nil
}

// GetClustered returns the cached pool and whether it is still valid.
// A missing or undecodable pool reports fresh=false.
func (m *Manager) GetClustered(ctx context.Context, id string) (models.ClusterPool, bool, error) {
	data, err := m.store.Get(ctx, clusteredKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		metrics.CacheLookups.WithLabelValues("clustered", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read clustered %s: %w", id, err)
	}

	var pool models.ClusterPool
	if err := json.Unmarshal(data, &pool); err != nil {
		metrics.CacheLookups.WithLabelValues("clustered", "corrupt").Inc()
		logger.Warn("Corrupted clustered cache, recomputing", "source", id, "error", err)
		return nil, false, nil
	}

	clusteredAt, err := m.stamp(ctx, clusteredKey(id))
	if err != nil {
		return nil, false, err
	}
	rawAt, err := m.stamp(ctx, rawKey(id))
	if err != nil {
		return nil, false, err
	}
	if !clusteredAt.After(rawAt) {
		metrics.CacheLookups.WithLabelValues("clustered", "stale").Inc()
		return pool, false, nil
	}
	metrics.CacheLookups.WithLabelValues("clustered", "hit").Inc()
	return pool, true, nil
}

// PutClustered stores a pool stamped after the current raw list.
func (m *Manager) PutClustered(ctx context.Context, id string, pool models.ClusterPool) error {
	if pool == nil {
		pool = models.ClusterPool{}
	}
	data, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("encode clustered %s: %w", id, err)
	}
	at := m.now()
	rawAt, err := m.stamp(ctx, rawKey(id))
	if err != nil {
		return err
	}
	if !at.After(rawAt) {
		at = rawAt.Add(time.Nanosecond)
	}
	if err := m.store.Put(ctx, clusteredKey(id), data, at); err != nil {
		return fmt.Errorf("write clustered %s: %w", id, err)
	}
	return nil
}

// Clustered serves the cached pool when fresh; otherwise it clusters the raw
// list with c and stores the result.
func (m *Manager) Clustered(ctx context.Context, id string, c Clusterer) (models.ClusterPool, error) {
	pool, fresh, err := m.GetClustered(ctx, id)
	if err != nil {
		return nil, err
	}
	if fresh {
		return pool, nil
	}
	raw, err := m.GetRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	pool = c.Build(raw.Articles)
	if err := m.PutClustered(ctx, id, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Invalidate drops both slots of a source.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, rawKey(id)); err != nil {
		return fmt.Errorf("invalidate raw %s: %w", id, err)
	}
	if err := m.store.Delete(ctx, clusteredKey(id)); err != nil {
		return fmt.Errorf("invalidate clustered %s: %w", id, err)
	}
	return nil
}

// CachedSources lists source IDs with a raw slot, excluding the master.
func (m *Manager) CachedSources(ctx context.Context) ([]string, error) {
	keys, err := m.store.List(ctx, rawPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, rawPrefix)
		if id != MasterID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MarkSynced records the time of the last completed feed sync.
func (m *Manager) MarkSynced(ctx context.Context) error {
	at := m.now()
	return m.store.Put(ctx, lastSyncKey, []byte(at.UTC().Format(time.RFC3339Nano)), at)
}

// LastSync returns the time of the last completed feed sync, or zero.
func (m *Manager) LastSync(ctx context.Context) (time.Time, error) {
	return m.stamp(ctx, lastSyncKey)
}

func (m *Manager) stamp(ctx context.Context, key string) (time.Time, error) {
	at, err := m.store.ModTime(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stamp %s: %w", key, err)
	}
	return at, nil
}
