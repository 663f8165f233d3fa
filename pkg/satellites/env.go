package satellites

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EnvSource synthesizes records from a list of origins, typically the
// comma-separated SATELLITE_DOMAINS variable. Records carry no branding.
type EnvSource struct {
	Origins []string
	Log     *zap.SugaredLogger
	Now     func() time.Time
}

func (e EnvSource) Name() string { return "env" }

func (e EnvSource) Load(_ context.Context) ([]Record, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	added := now().UTC().Format(time.RFC3339)

	var out []Record
	for i, raw := range e.Origins {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		r, err := Normalize(Record{
			ID:        fmt.Sprintf("env-%d", i),
			Origin:    raw,
			Enabled:   true,
			AddedDate: added,
		})
		if err != nil {
			e.Log.Warnw("skipping satellite origin from environment", "value", raw, "err", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
