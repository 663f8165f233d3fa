package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistryReloads counts satellite registry loads by result (ok, error).
	RegistryReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbridge_registry_reloads_total",
		Help: "Satellite registry load attempts by result",
	}, []string{"result"})

	// Satellites is the number of enabled satellites in the current snapshot.
	Satellites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authbridge_registry_satellites",
		Help: "Enabled satellites in the current registry snapshot",
	})

	// RedirectResolutions counts resolver outcomes by target kind.
	RedirectResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbridge_redirect_resolutions_total",
		Help: "Redirect targets resolved, by kind",
	}, []string{"kind"})

	// AllowListDecisions counts sign-out redirect checks by decision and the rule that decided.
	AllowListDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbridge_allowlist_decisions_total",
		Help: "Sign-out redirect allow-list decisions",
	}, []string{"allowed", "rule"})

	// SignOuts counts sign-out flows by terminal state.
	SignOuts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbridge_signouts_total",
		Help: "Cross-domain sign-out flows by terminal state",
	}, []string{"state"})

	// Reconciliations counts post-sign-in reconciliation outcomes.
	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbridge_reconciliations_total",
		Help: "Post sign-in reconciliation trigger outcomes",
	}, []string{"outcome"})

	// CORSRequests counts requests to the provider namespace by origin decision.
	CORSRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbridge_cors_requests_total",
		Help: "Provider namespace requests by CORS origin decision",
	}, []string{"allowed", "preflight"})
)
