package middleware

import (
	"context"
	"net/http"

	"authbridge/pkg/satellites"
)

type ctxSnapshotKey struct{}

// Snapshots hands out the current registry generation.
type Snapshots interface {
	Snapshot(ctx context.Context) *satellites.Snapshot
}

// WithSnapshot pins one registry generation for the whole request, so every
// lookup made while serving it sees the same satellite set.
func WithSnapshot(reg Snapshots) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxSnapshotKey{}, reg.Snapshot(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SnapshotFrom returns the snapshot pinned by WithSnapshot, or nil.
func SnapshotFrom(ctx context.Context) *satellites.Snapshot {
	if v, ok := ctx.Value(ctxSnapshotKey{}).(*satellites.Snapshot); ok {
		return v
	}
	return nil
}
