package satellites

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Source yields satellite records from one configuration backend.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Record, error)
}

// Store is a Source that also accepts runtime edits.
type Store interface {
	Source
	Upsert(ctx context.Context, r Record) error
	Disable(ctx context.Context, id string) error
}

// ErrNotFound is returned by stores when an id is unknown.
var ErrNotFound = errors.New("satellite not found")

// ConfigLoadError wraps a failure to read a configuration source. Entry-level
// problems never produce it; they are skipped and logged.
type ConfigLoadError struct {
	Source string
	Err    error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load satellites from %s: %v", e.Source, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

type chain struct {
	sources []Source
	log     *zap.SugaredLogger
}

// Chain tries sources in priority order. The first source that yields at
// least one enabled record wins; a lower source is only consulted when every
// higher one loaded cleanly but came back empty.
//
// A failing source makes the whole load fail with a *ConfigLoadError so the
// registry keeps its previous generation. The lower sources are still read
// and their records returned next to the error; the registry only uses them
// when it has nothing cached yet.
func Chain(log *zap.SugaredLogger, sources ...Source) Source {
	return &chain{sources: sources, log: log}
}

func (c *chain) Name() string { return "chain" }

func (c *chain) Load(ctx context.Context) ([]Record, error) {
	recs, _, err := c.LoadAttributed(ctx)
	return recs, err
}

// LoadAttributed is Load plus the name of the source that won.
func (c *chain) LoadAttributed(ctx context.Context) ([]Record, string, error) {
	var errs []error
	for _, src := range c.sources {
		recs, err := src.Load(ctx)
		if err != nil {
			c.log.Warnw("satellite source failed", "source", src.Name(), "err", err)
			errs = append(errs, err)
			continue
		}
		if n := countEnabled(recs); n > 0 {
			if len(errs) > 0 {
				c.log.Warnw("satellite source failed, lower source available as fallback", "fallback", src.Name(), "enabled", n)
				return recs, src.Name(), &ConfigLoadError{Source: c.Name(), Err: errors.Join(errs...)}
			}
			c.log.Debugw("satellites loaded", "source", src.Name(), "enabled", n)
			return recs, src.Name(), nil
		}
	}
	if len(errs) > 0 {
		return nil, "", &ConfigLoadError{Source: c.Name(), Err: errors.Join(errs...)}
	}
	c.log.Warnw("no satellite domains configured")
	return nil, "none", nil
}

// attributed is implemented by sources that delegate to other sources.
type attributed interface {
	LoadAttributed(ctx context.Context) ([]Record, string, error)
}

func loadAttributed(ctx context.Context, src Source) ([]Record, string, error) {
	if a, ok := src.(attributed); ok {
		return a.LoadAttributed(ctx)
	}
	recs, err := src.Load(ctx)
	return recs, src.Name(), err
}

func countEnabled(recs []Record) int {
	n := 0
	for _, r := range recs {
		if r.Enabled {
			n++
		}
	}
	return n
}
