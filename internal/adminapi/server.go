package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"authbridge/pkg/openapi"
)

// RegisterRoutes mounts the admin API under /admin. Without a token the API
// stays unmounted. The OpenAPI document at /admin/openapi.json is public.
func (a *App) RegisterRoutes(r chi.Router) {
	if a.token == "" {
		a.log.Warnw("ADMIN_API_TOKEN not set, admin api disabled")
		return
	}
	docs := openapi.NewRegistry()
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(cors(a.origins))
		ar.Get("/openapi.json", docs.ServeHandler("authbridge-admin", "1"))
		ar.Group(func(g chi.Router) {
			g.Use(a.adminAuth)
			route := func(method, path, summary string, h http.HandlerFunc) {
				g.Method(method, path, h)
				docs.Register(openapi.Operation{Method: method, Path: "/admin" + path, Summary: summary, Tags: []string{"satellites"}, Secured: true})
			}
			route(http.MethodGet, "/satellites", "List satellites", a.listSatellites)
			route(http.MethodGet, "/satellites/stats", "Satellite counts and cache state", a.getStats)
			route(http.MethodPost, "/satellites/invalidate", "Reload the registry on every instance", a.invalidate)
			route(http.MethodPost, "/satellites", "Create a satellite", a.createSatellite)
			route(http.MethodPut, "/satellites/{id}", "Create or replace a satellite by id", a.updateSatellite)
			route(http.MethodPost, "/satellites/{id}/disable", "Disable a satellite", a.disableSatellite)
		})
	})
}
