// Package bridge serves the primary-domain side of cross-domain auth:
// sign-out for satellites, CORS for the provider's path namespace, and the
// branded sign-in and sign-up entry points.
package bridge

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"authbridge/internal/reconcile"
	"authbridge/pkg/config"
	"authbridge/pkg/idp"
	"authbridge/pkg/middleware"
	"authbridge/pkg/redirect"
	"authbridge/pkg/satellites"
)

//go:embed templates/*.html
var templateFS embed.FS

// Reconciler is the post sign-in hook; *reconcile.Trigger satisfies it.
type Reconciler interface {
	Fire(ctx context.Context, sess idp.Session) reconcile.Outcome
}

type Bridge struct {
	cfg      config.Config
	reg      middleware.Snapshots
	provider idp.Provider
	rec      Reconciler
	resolver redirect.Resolver
	signOut  *SignOutFlow
	proxy    http.Handler
	pages    *template.Template
	log      *zap.SugaredLogger
}

func New(cfg config.Config, reg middleware.Snapshots, provider idp.Provider, rec Reconciler, log *zap.SugaredLogger) (*Bridge, error) {
	primary, err := cfg.PrimaryHost()
	if err != nil {
		return nil, err
	}
	pages, err := template.New("pages").Funcs(template.FuncMap{
		"seconds":    refreshSeconds,
		"logoURL":    logoURL,
		"logoColors": logoColors,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	b := &Bridge{
		cfg:      cfg,
		reg:      reg,
		provider: provider,
		rec:      rec,
		resolver: redirect.Resolver{PrimaryHost: primary},
		signOut: &SignOutFlow{
			Provider: provider,
			AllowList: redirect.AllowList{
				PrimaryHost: primary,
				ExtraHosts:  cfg.AllowedRedirectHost,
				Mode:        cfg.AllowListMode,
			},
			Flag:   cfg.SignOutFlag,
			Settle: cfg.SettleDelay,
			Grace:  cfg.GraceDelay,
			Log:    log,
		},
		pages: pages,
		log:   log,
	}
	if cfg.IdPFrontendURL != "" {
		upstream, err := url.Parse(cfg.IdPFrontendURL)
		if err != nil || upstream.Host == "" {
			return nil, fmt.Errorf("IDP_FRONTEND_API_URL must be an absolute URL, got %q", cfg.IdPFrontendURL)
		}
		b.proxy = newProviderProxy(upstream, cfg.IdPPathPrefix, log)
	}
	return b, nil
}

func (b *Bridge) RegisterRoutes(r chi.Router) {
	r.Get("/auth/signout-redirect", b.handleSignOut)
	for _, p := range []string{"/sign-in", "/sign-in/*"} {
		r.Get(p, b.handleAuthPage(pageSignIn))
	}
	for _, p := range []string{"/sign-up", "/sign-up/*"} {
		r.Get(p, b.handleAuthPage(pageSignUp))
	}
	r.Get("/api/auth/context", b.handleContext)
}

// snapshot prefers the generation pinned by middleware.WithSnapshot.
func (b *Bridge) snapshot(r *http.Request) *satellites.Snapshot {
	if s := middleware.SnapshotFrom(r.Context()); s != nil {
		return s
	}
	return b.reg.Snapshot(r.Context())
}

func (b *Bridge) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := b.pages.ExecuteTemplate(w, name, data); err != nil {
		b.log.Errorw("render page", "template", name, "err", err)
	}
}

// pageMeta is embedded by every page's data. A non-empty RefreshURL adds a
// meta refresh to the document head.
type pageMeta struct {
	PageTitle    string
	RefreshURL   string
	RefreshDelay time.Duration
}

func (m pageMeta) Refresh() bool { return m.RefreshURL != "" }

// refreshSeconds rounds d up to whole seconds for a meta refresh.
func refreshSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func logoURL(l satellites.Logo) string {
	if img, ok := l.(satellites.ImageLogo); ok {
		return img.URL
	}
	return ""
}

func logoColors(l satellites.Logo) satellites.LogoColors {
	if l == nil {
		return satellites.LogoColors{}
	}
	return l.Colors()
}
