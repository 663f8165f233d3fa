package bridge

import (
	"encoding/json"
	"net/http"

	"authbridge/pkg/redirect"
	"authbridge/pkg/satellites"
)

type authPage int

const (
	pageSignIn authPage = iota
	pageSignUp
)

// Chrome is what an auth page shows around the provider's form.
type Chrome struct {
	Satellite  *satellites.Record
	ShowHeader bool
	ShowFooter bool
}

// ChromeFor derives page chrome from a resolved target. Only a Satellite
// target carries branding; everything else renders the primary chrome.
func ChromeFor(t redirect.Target) Chrome {
	s, ok := t.(redirect.Satellite)
	if !ok {
		return Chrome{}
	}
	rec := s.Record
	return Chrome{Satellite: &rec, ShowHeader: rec.ShowHeader(), ShowFooter: rec.ShowFooter()}
}

type authPageData struct {
	pageMeta
	Chrome
	SignUp      bool
	Destination string
}

type redirectingPageData struct {
	pageMeta
	Destination string
}

func (b *Bridge) handleAuthPage(kind authPage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := b.resolver.Resolve(b.snapshot(r), r.URL.Query().Get("redirect_url"))
		dest := redirect.Destination(target, "/")

		sess, err := b.provider.Session(r)
		if err != nil {
			b.log.Warnw("session lookup failed, rendering signed out", "path", r.URL.Path, "err", err)
		}
		if err == nil && sess.SignedIn {
			b.rec.Fire(r.Context(), sess)
			b.render(w, http.StatusOK, "redirecting.html", redirectingPageData{
				pageMeta:    pageMeta{PageTitle: "Signed in", RefreshURL: dest, RefreshDelay: b.cfg.RedirectWait},
				Destination: dest,
			})
			return
		}
		if inv, ok := target.(redirect.Invalid); ok && r.URL.Query().Has("redirect_url") {
			b.log.Infow("ignoring unusable redirect_url", "redirect_url", inv.Raw, "err", inv.Err)
		}
		title := "Sign in"
		if kind == pageSignUp {
			title = "Sign up"
		}
		b.render(w, http.StatusOK, "auth.html", authPageData{
			pageMeta:    pageMeta{PageTitle: title},
			Chrome:      ChromeFor(target),
			SignUp:      kind == pageSignUp,
			Destination: dest,
		})
	}
}

type authContext struct {
	Kind        string             `json:"kind"`
	Destination string             `json:"destination"`
	Satellite   *satellites.Record `json:"satellite,omitempty"`
	ShowHeader  bool               `json:"showHeader"`
	ShowFooter  bool               `json:"showFooter"`
}

// handleContext exposes the resolved sign-in context to a renderer that
// draws the provider widget itself.
func (b *Bridge) handleContext(w http.ResponseWriter, r *http.Request) {
	target := b.resolver.Resolve(b.snapshot(r), r.URL.Query().Get("redirect_url"))
	chrome := ChromeFor(target)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(authContext{
		Kind:        target.Kind(),
		Destination: redirect.Destination(target, "/"),
		Satellite:   chrome.Satellite,
		ShowHeader:  chrome.ShowHeader,
		ShowFooter:  chrome.ShowFooter,
	})
}
