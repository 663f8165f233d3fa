package satellites

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"authbridge/pkg/metrics"
)

// errorRetry caps how long a failed load keeps serving the previous generation
// before trying again.
const errorRetry = 30 * time.Second

// loadTimeout bounds one shared load. The load outlives the request that
// started it, since other readers may be waiting on it.
const loadTimeout = 15 * time.Second

// Registry caches satellite snapshots for a bounded TTL. Readers take the
// current *Snapshot with one atomic load; a refresh builds a complete new
// generation and swaps it in, so a half-built registry is never observable.
type Registry struct {
	src Source
	ttl time.Duration
	log *zap.SugaredLogger
	now func() time.Time

	cur           atomic.Pointer[Snapshot]
	version       atomic.Uint64
	invalidations atomic.Uint64
	group         singleflight.Group
}

// CacheStats describes the cached generation.
type CacheStats struct {
	Cached  bool          `json:"cached"`
	Count   int           `json:"count"`
	Age     time.Duration `json:"age"`
	TTL     time.Duration `json:"ttl"`
	Version uint64        `json:"version"`
	Source  string        `json:"source"`
}

func NewRegistry(src Source, ttl time.Duration, log *zap.SugaredLogger) *Registry {
	return &Registry{src: src, ttl: ttl, log: log, now: time.Now}
}

// Snapshot returns the current generation, loading it first if it is missing
// or expired. It never returns nil.
func (r *Registry) Snapshot(ctx context.Context) *Snapshot {
	if cur := r.cur.Load(); cur != nil && r.now().Before(cur.expiresAt) {
		return cur
	}
	snap, _ := r.Refresh(ctx)
	return snap
}

// Refresh loads a new generation now. On failure the previous generation is
// kept (an empty one on first load) and returned together with the error.
// Cancelling ctx does not abort a load other callers are sharing.
func (r *Registry) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := r.group.Do("refresh", func() (any, error) {
		inv := r.invalidations.Load()
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		recs, source, err := loadAttributed(lctx, r.src)
		now := r.now()
		if err != nil {
			metrics.RegistryReloads.WithLabelValues("error").Inc()
			retry := r.ttl
			if retry > errorRetry {
				retry = errorRetry
			}
			prev := r.cur.Load()
			switch {
			case prev == nil && countEnabled(recs) > 0:
				r.log.Errorw("satellite registry first load failed, serving fallback source", "source", source, "err", err)
				prev = NewSnapshot(r.version.Add(1), source, recs, r.log)
				prev.LoadedAt = now
			case prev == nil:
				r.log.Errorw("satellite registry first load failed, serving empty set", "err", err)
				prev = NewSnapshot(r.version.Add(1), "none", nil, r.log)
				prev.LoadedAt = now
			default:
				r.log.Errorw("satellite registry refresh failed, serving last known good", "err", err, "version", prev.Version)
			}
			snap := prev.withExpiry(now.Add(retry))
			r.cur.Store(snap)
			return snap, err
		}

		snap := NewSnapshot(r.version.Add(1), source, recs, r.log)
		snap.LoadedAt = now
		expires := now.Add(r.ttl)
		if r.invalidations.Load() != inv {
			// invalidated while loading; serve this one but reload on next read
			expires = time.Time{}
		}
		snap = snap.withExpiry(expires)
		r.cur.Store(snap)
		metrics.RegistryReloads.WithLabelValues("ok").Inc()
		metrics.Satellites.Set(float64(snap.Len()))
		if snap.Len() == 0 {
			r.log.Warnw("satellite registry is empty", "source", source)
		} else {
			r.log.Infow("satellite registry loaded", "source", source, "enabled", snap.Len(), "version", snap.Version)
		}
		return snap, nil
	})
	return v.(*Snapshot), err
}

// Invalidate forces the next Snapshot call to reload.
func (r *Registry) Invalidate() {
	r.invalidations.Add(1)
	for {
		cur := r.cur.Load()
		if cur == nil || r.cur.CompareAndSwap(cur, cur.withExpiry(time.Time{})) {
			return
		}
	}
}

// LoadSatellites returns the enabled records of the current generation.
func (r *Registry) LoadSatellites(ctx context.Context) []Record {
	return r.Snapshot(ctx).Records()
}

func (r *Registry) ResolveByHostname(ctx context.Context, hostname string) (Record, bool) {
	return r.Snapshot(ctx).ResolveByHostname(hostname)
}

func (r *Registry) CacheStats() CacheStats {
	cur := r.cur.Load()
	if cur == nil {
		return CacheStats{TTL: r.ttl}
	}
	return CacheStats{
		Cached:  r.now().Before(cur.expiresAt),
		Count:   cur.Len(),
		Age:     r.now().Sub(cur.LoadedAt),
		TTL:     r.ttl,
		Version: cur.Version,
		Source:  cur.Source,
	}
}
