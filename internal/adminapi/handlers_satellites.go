package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"authbridge/pkg/satellites"
)

// satelliteInput is the request body for create and update. Enabled
// defaults to true when omitted.
type satelliteInput struct {
	Origin      string               `json:"domain"`
	DisplayName string               `json:"displayName"`
	TenantID    string               `json:"tenantId"`
	Enabled     *bool                `json:"enabled"`
	Branding    *satellites.Branding `json:"branding"`
}

func (in satelliteInput) record(id string) satellites.Record {
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	return satellites.Record{
		ID:          id,
		Origin:      in.Origin,
		DisplayName: in.DisplayName,
		TenantID:    in.TenantID,
		Enabled:     enabled,
		Branding:    in.Branding,
	}
}

// listSatellites answers from the store when there is one, so disabled
// records stay visible and can be re-enabled. Read-only sources only expose
// the enabled set of the current snapshot.
func (a *App) listSatellites(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot(r.Context())
	recs, source := snap.Records(), snap.Source
	if a.store != nil {
		all, err := a.store.Load(r.Context())
		if err != nil {
			a.log.Errorw("list satellites", "err", err)
			a.problem(w, r, http.StatusBadGateway, "store-error", "Satellite store error", err.Error())
			return
		}
		recs, source = all, a.store.Name()
	}
	if recs == nil {
		recs = []satellites.Record{}
	}
	writeJSON(w, map[string]any{
		"satellites": recs,
		"version":    snap.Version,
		"source":     source,
	}, http.StatusOK)
}

func (a *App) getStats(w http.ResponseWriter, r *http.Request) {
	snap := a.reg.Snapshot(r.Context())
	writeJSON(w, map[string]any{
		"stats": snap.Stats(),
		"cache": a.reg.CacheStats(),
	}, http.StatusOK)
}

func (a *App) invalidate(w http.ResponseWriter, r *http.Request) {
	a.changed(r.Context())
	snap, err := a.reg.Refresh(r.Context())
	if err != nil {
		a.problem(w, r, http.StatusBadGateway, "reload-failed", "Satellite reload failed", err.Error())
		return
	}
	writeJSON(w, map[string]any{"ok": true, "version": snap.Version, "count": snap.Len()}, http.StatusOK)
}

func (a *App) createSatellite(w http.ResponseWriter, r *http.Request) {
	a.save(w, r, uuid.NewString(), http.StatusCreated)
}

func (a *App) updateSatellite(w http.ResponseWriter, r *http.Request) {
	a.save(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (a *App) save(w http.ResponseWriter, r *http.Request, id string, status int) {
	if a.store == nil {
		a.problem(w, r, http.StatusNotImplemented, "read-only-source", "Satellite source is read-only", "")
		return
	}
	var in satelliteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.problem(w, r, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}
	rec, err := satellites.Normalize(in.record(id))
	if err != nil {
		a.problem(w, r, http.StatusBadRequest, "invalid-satellite", "Invalid satellite", err.Error())
		return
	}
	if err := a.store.Upsert(r.Context(), rec); err != nil {
		a.log.Errorw("upsert satellite", "id", id, "err", err)
		a.problem(w, r, http.StatusInternalServerError, "store-error", "Satellite store error", "")
		return
	}
	a.log.Infow("satellite saved", "id", rec.ID, "hostname", rec.Hostname, "enabled", rec.Enabled)
	a.changed(r.Context())
	writeJSON(w, rec, status)
}

func (a *App) disableSatellite(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		a.problem(w, r, http.StatusNotImplemented, "read-only-source", "Satellite source is read-only", "")
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.store.Disable(r.Context(), id); err != nil {
		if errors.Is(err, satellites.ErrNotFound) {
			a.problem(w, r, http.StatusNotFound, "not-found", "Satellite not found", id)
			return
		}
		a.log.Errorw("disable satellite", "id", id, "err", err)
		a.problem(w, r, http.StatusInternalServerError, "store-error", "Satellite store error", "")
		return
	}
	a.log.Infow("satellite disabled", "id", id)
	a.changed(r.Context())
	writeJSON(w, map[string]any{"ok": true, "id": id}, http.StatusOK)
}
