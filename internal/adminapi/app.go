package adminapi

import (
	"context"

	"go.uber.org/zap"

	"authbridge/pkg/satellites"
)

// Config holds admin-api specific configuration.
type Config struct {
	Token       string
	CORSOrigins []string
	ProblemBase string
}

// Registry is the part of *satellites.Registry the admin API drives.
type Registry interface {
	Snapshot(ctx context.Context) *satellites.Snapshot
	Refresh(ctx context.Context) (*satellites.Snapshot, error)
	Invalidate()
	CacheStats() satellites.CacheStats
}

// Publisher tells peer instances to drop their cached registry.
type Publisher interface {
	Publish(ctx context.Context) error
}

// App is the admin-api application container. store is nil when the
// configured satellite source is read-only (file or env); write routes then
// answer 501.
type App struct {
	log         *zap.SugaredLogger
	reg         Registry
	store       satellites.Store
	pub         Publisher
	token       string
	origins     []string
	problemBase string
}

func New(log *zap.SugaredLogger, reg Registry, store satellites.Store, pub Publisher, cfg Config) *App {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3001"}
	}
	return &App{
		log:         log,
		reg:         reg,
		store:       store,
		pub:         pub,
		token:       cfg.Token,
		origins:     origins,
		problemBase: cfg.ProblemBase,
	}
}

// changed drops the local cache and fans the invalidation out to peers. A
// failed publish only delays peers until their TTL runs out.
func (a *App) changed(ctx context.Context) {
	a.reg.Invalidate()
	if a.pub == nil {
		return
	}
	if err := a.pub.Publish(ctx); err != nil {
		a.log.Warnw("publish satellite invalidation", "err", err)
	}
}
