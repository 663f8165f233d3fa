package satellites

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var satelliteColumns = []string{"id", "domain", "hostname", "display_name", "tenant_id", "enabled", "branding", "added_date"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, nopLog()), mock
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS satellites").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	store, mock := newMockStore(t)
	added := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(satelliteColumns).
		AddRow("md", "https://www.md-strikers.com", "www.md-strikers.com", "MD Strikers", "t-1", true,
			[]byte(`{"orgName":"MD","logo":{"type":"image","url":"https://cdn/x.png"},"showOnAuth":{"header":true}}`), added).
		AddRow("off", "https://off.example.com", "off.example.com", "Off", "", false, nil, added).
		AddRow("bad", "not-a-url", "", "Bad", "", true, nil, added)
	mock.ExpectQuery("SELECT id, domain, hostname").WillReturnRows(rows)

	recs, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "md", recs[0].ID)
	assert.Equal(t, "t-1", recs[0].TenantID)
	assert.Equal(t, "2024-01-15T00:00:00Z", recs[0].AddedDate)
	require.NotNil(t, recs[0].Branding)
	assert.IsType(t, ImageLogo{}, recs[0].Branding.Logo)
	assert.True(t, recs[0].ShowHeader())

	assert.False(t, recs[1].Enabled)
	assert.Nil(t, recs[1].Branding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, domain, hostname").WillReturnError(sql.ErrConnDone)

	_, err := store.Load(context.Background())
	var cle *ConfigLoadError
	require.ErrorAs(t, err, &cle)
	assert.Equal(t, "postgres", cle.Source)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPostgresStore_Upsert(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO satellites").
		WithArgs("sat1", "https://sat1.example.com", "sat1.example.com", "Sat1", sqlmock.AnyArg(), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Upsert(context.Background(), Record{ID: "sat1", Origin: "https://SAT1.example.com", Enabled: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertGeneratesID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO satellites").
		WithArgs(sqlmock.AnyArg(), "https://new.example.com", "new.example.com", "New", sqlmock.AnyArg(), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Upsert(context.Background(), Record{Origin: "https://new.example.com", Enabled: true}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRejectsInvalid(t *testing.T) {
	store, mock := newMockStore(t)
	assert.Error(t, store.Upsert(context.Background(), Record{ID: "x", Origin: "javascript:alert(1)"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Disable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE satellites SET enabled = false").WithArgs("sat1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE satellites SET enabled = false").WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Disable(context.Background(), "sat1"))
	assert.ErrorIs(t, store.Disable(context.Background(), "ghost"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satellites.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"satellites":[{"id":"sat1","domain":"https://sat1.example.com","enabled":true}]}`), 0o600))

	t.Run("empty table is seeded", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM satellites")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO satellites").
			WithArgs("sat1", "https://sat1.example.com", "sat1.example.com", "Sat1", sqlmock.AnyArg(), true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := store.SeedFromFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("populated table is left alone", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM satellites")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		n, err := store.SeedFromFile(context.Background(), path)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
