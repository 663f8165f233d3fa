package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authbridge/pkg/problems"
	"authbridge/pkg/satellites"
)

type memStore struct {
	mu   sync.Mutex
	recs []satellites.Record
	fail error
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Load(context.Context) ([]satellites.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return append([]satellites.Record(nil), m.recs...), nil
}

func (m *memStore) Upsert(_ context.Context, r satellites.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.recs {
		if m.recs[i].ID == r.ID {
			m.recs[i] = r
			return nil
		}
	}
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Disable(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.recs {
		if m.recs[i].ID == id {
			m.recs[i].Enabled = false
			return nil
		}
	}
	return satellites.ErrNotFound
}

type countingPublisher struct{ n atomic.Int32 }

func (c *countingPublisher) Publish(context.Context) error {
	c.n.Add(1)
	return nil
}

const token = "s3cret"

type fixture struct {
	router chi.Router
	store  *memStore
	reg    *satellites.Registry
	pub    *countingPublisher
}

func newFixture(t *testing.T, writable bool) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	sat, err := satellites.Normalize(satellites.Record{ID: "sat1", Origin: "https://sat1.example.com", Enabled: true, TenantID: "t1"})
	require.NoError(t, err)
	f := &fixture{store: &memStore{recs: []satellites.Record{sat}}, pub: &countingPublisher{}}
	f.reg = satellites.NewRegistry(f.store, time.Hour, log)

	var store satellites.Store
	if writable {
		store = f.store
	}
	app := New(log, f.reg, store, f.pub, Config{
		Token:       token,
		CORSOrigins: []string{"https://admin.example.com"},
		ProblemBase: problems.Base("https://www.event-site-manager.com"),
	})
	f.router = chi.NewRouter()
	app.RegisterRoutes(f.router)
	return f
}

func (f *fixture) do(method, path, body string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problems.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p problems.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(http.MethodGet, "/admin/satellites", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "https://www.event-site-manager.com/problems/unauthorized", p.Type)
	assert.Equal(t, "/admin/satellites", p.Instance)

	req := httptest.NewRequest(http.MethodGet, "/admin/satellites", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	r := chi.NewRouter()
	New(zap.NewNop().Sugar(), nil, nil, nil, Config{}).RegisterRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/satellites", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCORS(t *testing.T) {
	f := newFixture(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/admin/satellites", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/admin/satellites", nil)
	req.Header.Set("Origin", "https://evil.com")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEqual(t, http.StatusNoContent, w.Code)
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(http.MethodGet, "/admin/satellites", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Satellites []satellites.Record `json:"satellites"`
		Source     string              `json:"source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Satellites, 1)
	assert.Equal(t, "sat1.example.com", list.Satellites[0].Hostname)
	assert.Equal(t, "mem", list.Source)

	w = f.do(http.MethodGet, "/admin/satellites/stats", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Stats satellites.Stats      `json:"stats"`
		Cache satellites.CacheStats `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, satellites.Stats{Total: 1, Enabled: 1, WithTenantID: 1}, stats.Stats)
	assert.True(t, stats.Cache.Cached)
	assert.Equal(t, 1, stats.Cache.Count)
}

func TestCreateUpdateDisable(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(http.MethodPost, "/admin/satellites", `{"domain":"https://www.md-strikers.com","branding":{"orgName":"MD Strikers","logo":{"type":"text"},"showOnAuth":{"header":true}}}`, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created satellites.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "www.md-strikers.com", created.Hostname)
	assert.Equal(t, "Md Strikers", created.DisplayName)
	assert.True(t, created.Enabled)
	assert.EqualValues(t, 1, f.pub.n.Load())

	snap := f.reg.Snapshot(context.Background())
	rec, ok := snap.ResolveByHostname("www.md-strikers.com")
	require.True(t, ok, "write invalidates the local cache")
	assert.True(t, rec.ShowHeader())

	w = f.do(http.MethodPut, "/admin/satellites/"+created.ID, `{"domain":"https://www.md-strikers.com","displayName":"Strikers"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	rec, _ = f.reg.Snapshot(context.Background()).ResolveByID(created.ID)
	assert.Equal(t, "Strikers", rec.DisplayName)

	w = f.do(http.MethodPost, "/admin/satellites/"+created.ID+"/disable", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	_, ok = f.reg.Snapshot(context.Background()).ResolveByHostname("www.md-strikers.com")
	assert.False(t, ok, "disabled satellites never match")
	assert.EqualValues(t, 3, f.pub.n.Load())

	w = f.do(http.MethodGet, "/admin/satellites", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Satellites []satellites.Record `json:"satellites"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Satellites, 2, "disabled records are still listed")
	assert.Equal(t, created.ID, list.Satellites[1].ID)
	assert.False(t, list.Satellites[1].Enabled)

	w = f.do(http.MethodPut, "/admin/satellites/"+created.ID, `{"domain":"https://www.md-strikers.com","enabled":true}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	_, ok = f.reg.Snapshot(context.Background()).ResolveByHostname("www.md-strikers.com")
	assert.True(t, ok, "re-enabled")
}

func TestListStoreError(t *testing.T) {
	f := newFixture(t, true)
	f.reg.Snapshot(context.Background())
	f.store.mu.Lock()
	f.store.fail = errors.New("db down")
	f.store.mu.Unlock()

	w := f.do(http.MethodGet, "/admin/satellites", "", true)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "https://www.event-site-manager.com/problems/store-error", decodeProblem(t, w).Type)
}

func TestSaveValidation(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(http.MethodPost, "/admin/satellites", `{"domain":"ftp://files.example.com"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "https://www.event-site-manager.com/problems/invalid-satellite", decodeProblem(t, w).Type)

	w = f.do(http.MethodPost, "/admin/satellites", `{`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.pub.n.Load())
}

func TestDisableUnknown(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(http.MethodPost, "/admin/satellites/ghost/disable", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ghost", decodeProblem(t, w).Detail)
}

func TestReadOnlySource(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodPost, "/admin/satellites", `{"domain":"https://a.example.com"}`, true)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	w = f.do(http.MethodPost, "/admin/satellites/sat1/disable", "", true)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	f.reg.Snapshot(context.Background())
	require.NoError(t, f.store.Disable(context.Background(), "sat1"))
	w = f.do(http.MethodGet, "/admin/satellites", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":true`, "read-only sources list the cached snapshot")
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t, true)
	before := f.reg.Snapshot(context.Background()).Version

	w := f.do(http.MethodPost, "/admin/satellites/invalidate", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Version uint64 `json:"version"`
		Count   int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Greater(t, body.Version, before)
	assert.Equal(t, 1, body.Count)
	assert.EqualValues(t, 1, f.pub.n.Load())

	f.store.fail = errors.New("db down")
	w = f.do(http.MethodPost, "/admin/satellites/invalidate", "", true)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestOpenAPIDocument(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(http.MethodGet, "/admin/openapi.json", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc.Paths["/admin/satellites"], "get")
	assert.Contains(t, doc.Paths["/admin/satellites"], "post")
	assert.Contains(t, doc.Paths["/admin/satellites/{id}/disable"], "post")
}
