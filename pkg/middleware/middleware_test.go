package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"authbridge/pkg/config"
	"authbridge/pkg/satellites"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "abc")
	h.ServeHTTP(w, r)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", strings.Repeat("x", 200))
	h.ServeHTTP(w, r)
	assert.Len(t, seen, 36, "oversized ids are replaced")
	assert.Equal(t, seen, w.Header().Get("X-Request-Id"))

	assert.Empty(t, RequestIDFrom(context.Background()))
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := RequestID()(Recover(zap.New(core).Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sign-in", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/sign-in", logs.All()[0].ContextMap()["path"])
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(zap.NewNop().Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestDebugWriteHeader(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := DebugWriteHeader(true, zap.New(core).Sugar())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("double WriteHeader").Len())
}

func TestDebugWriteHeader_DisabledIsPassthrough(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var wrapped bool
	h := DebugWriteHeader(false, zap.New(core).Sugar())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, wrapped = w.(*dwrapper)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, wrapped)
	assert.Zero(t, logs.Len())
}

type countingSnapshots struct {
	snap  *satellites.Snapshot
	calls int
}

func (c *countingSnapshots) Snapshot(context.Context) *satellites.Snapshot {
	c.calls++
	return c.snap
}

func TestWithSnapshot(t *testing.T) {
	snap := satellites.NewSnapshot(7, "test", nil, zap.NewNop().Sugar())
	src := &countingSnapshots{snap: snap}

	var got *satellites.Snapshot
	h := WithSnapshot(src)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = SnapshotFrom(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sign-in", nil))
	assert.Same(t, snap, got)
	assert.Equal(t, 1, src.calls)

	got = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Nil(t, got)
	assert.Equal(t, 1, src.calls, "operational endpoints do not touch the registry")
}

func TestTracing_DisabledWithoutEndpoint(t *testing.T) {
	mw, shutdown := Tracing(config.Config{ServiceName: "authbridge"}, zap.NewNop().Sugar())
	called := false
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.NoError(t, shutdown(context.Background()))
}
