package satellites

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresStore keeps satellites in the `satellites` table. It works on a
// *sql.DB so that it can run over pgx (stdlib.OpenDBFromPool) in production
// and over sqlmock in tests.
type PostgresStore struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

func NewPostgresStore(db *sql.DB, log *zap.SugaredLogger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

func (p *PostgresStore) Name() string { return "postgres" }

// EnsureSchema creates the satellites table if it does not already exist.
// Safe to call repeatedly.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS satellites (
  id text PRIMARY KEY,
  domain text NOT NULL UNIQUE,
  hostname text NOT NULL UNIQUE,
  display_name text NOT NULL,
  tenant_id text,
  enabled boolean NOT NULL DEFAULT true,
  branding jsonb,
  added_date timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS satellites_enabled_idx ON satellites(enabled);
`)
	return err
}

// SeedFromFile loads a satellites document into an empty table. A table that
// already has rows is left alone, as is a missing file.
func (p *PostgresStore) SeedFromFile(ctx context.Context, path string) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM satellites`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count satellites: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	if _, err := os.Stat(path); err != nil {
		return 0, nil
	}
	recs, err := FileSource{Path: path, Log: p.log}.Load(ctx)
	if err != nil {
		return 0, err
	}
	seeded := 0
	for _, r := range recs {
		if err := p.Upsert(ctx, r); err != nil {
			return seeded, fmt.Errorf("seed %s: %w", r.Hostname, err)
		}
		seeded++
	}
	p.log.Infow("seeded satellites", "path", path, "count", seeded)
	return seeded, nil
}

const selectSatellites = `SELECT id, domain, hostname, display_name, COALESCE(tenant_id, ''), enabled, branding, added_date
FROM satellites ORDER BY added_date, id`

// Load returns every row, enabled or not. Rows that no longer normalize are
// logged and skipped.
func (p *PostgresStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, selectSatellites)
	if err != nil {
		return nil, &ConfigLoadError{Source: p.Name(), Err: err}
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			branding []byte
			added    time.Time
		)
		if err := rows.Scan(&r.ID, &r.Origin, &r.Hostname, &r.DisplayName, &r.TenantID, &r.Enabled, &branding, &added); err != nil {
			return nil, &ConfigLoadError{Source: p.Name(), Err: err}
		}
		r.AddedDate = added.UTC().Format(time.RFC3339)
		if len(branding) > 0 && string(branding) != "null" {
			var b Branding
			if err := json.Unmarshal(branding, &b); err != nil {
				p.log.Warnw("ignoring malformed satellite branding", "id", r.ID, "err", err)
			} else {
				r.Branding = &b
			}
		}
		norm, err := Normalize(r)
		if err != nil {
			p.log.Warnw("skipping invalid satellite row", "id", r.ID, "err", err)
			continue
		}
		out = append(out, norm)
	}
	if err := rows.Err(); err != nil {
		return nil, &ConfigLoadError{Source: p.Name(), Err: err}
	}
	return out, nil
}

// Upsert inserts or updates r by id. A record without id gets a fresh UUID.
func (p *PostgresStore) Upsert(ctx context.Context, r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	norm, err := Normalize(r)
	if err != nil {
		return err
	}
	var branding any
	if norm.Branding != nil {
		raw, err := json.Marshal(norm.Branding)
		if err != nil {
			return fmt.Errorf("encode branding: %w", err)
		}
		branding = raw
	}
	var tenant any
	if norm.TenantID != "" {
		tenant = norm.TenantID
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO satellites (id, domain, hostname, display_name, tenant_id, enabled, branding)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  domain = EXCLUDED.domain,
  hostname = EXCLUDED.hostname,
  display_name = EXCLUDED.display_name,
  tenant_id = EXCLUDED.tenant_id,
  enabled = EXCLUDED.enabled,
  branding = EXCLUDED.branding,
  updated_at = NOW()`,
		norm.ID, norm.Origin, norm.Hostname, norm.DisplayName, tenant, norm.Enabled, branding)
	if err != nil {
		return fmt.Errorf("upsert satellite %s: %w", norm.ID, err)
	}
	return nil
}

func (p *PostgresStore) Disable(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE satellites SET enabled = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable satellite %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
