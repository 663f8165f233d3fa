package bridge

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"authbridge/pkg/idp"
	"authbridge/pkg/metrics"
	"authbridge/pkg/redirect"
	"authbridge/pkg/satellites"
)

type SignOutState int

const (
	StateIdle SignOutState = iota
	StateSigningOut
	StateRedirecting
	StateDone
	StateError
)

func (s SignOutState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSigningOut:
		return "signing_out"
	case StateRedirecting:
		return "redirecting"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrAllowListRejected halts sign-out before any credential is cleared.
var ErrAllowListRejected = errors.New("redirect url is not allowed")

// SignOutOutcome is where a sign-out run ended. Location is where the
// browser goes next and Delay how long the page waits before going there.
type SignOutOutcome struct {
	State    SignOutState
	Trail    []SignOutState
	Location string
	Delay    time.Duration
	Err      error
}

func (o *SignOutOutcome) enter(s SignOutState) {
	o.State = s
	o.Trail = append(o.Trail, s)
}

// SignOutFlow clears the primary-domain session and sends the browser back
// to the satellite that asked for it.
type SignOutFlow struct {
	Provider  idp.Provider
	AllowList redirect.AllowList
	Flag      string
	Settle    time.Duration
	Grace     time.Duration
	Log       *zap.SugaredLogger

	sleep func(ctx context.Context, d time.Duration)
}

func (f *SignOutFlow) Run(ctx context.Context, w http.ResponseWriter, r *http.Request, snap *satellites.Snapshot, redirectURL string) SignOutOutcome {
	out := f.run(ctx, w, r, snap, redirectURL)
	metrics.SignOuts.WithLabelValues(out.State.String()).Inc()
	return out
}

func (f *SignOutFlow) run(ctx context.Context, w http.ResponseWriter, r *http.Request, snap *satellites.Snapshot, redirectURL string) SignOutOutcome {
	redirectURL = strings.TrimSpace(redirectURL)
	if redirectURL == "" {
		redirectURL = "/"
	}
	var out SignOutOutcome
	out.enter(StateIdle)

	if d := f.AllowList.Check(snap, redirectURL); !d.Allowed {
		f.Log.Warnw("sign-out redirect rejected", "redirect_url", redirectURL, "host", d.Host, "err", d.Err)
		out.enter(StateError)
		out.Err = ErrAllowListRejected
		out.Location = "/"
		out.Delay = f.Grace
		return out
	}

	out.enter(StateSigningOut)
	if err := f.Provider.SignOut(ctx, w, r, idp.SignOutOptions{}); err != nil {
		f.Log.Errorw("provider sign-out failed", "redirect_url", redirectURL, "err", err)
		out.enter(StateError)
		out.Err = err
		out.Location = redirectURL
		out.Delay = f.Grace
		return out
	}

	out.enter(StateRedirecting)
	f.wait(ctx, f.Settle)
	out.Location = redirect.AppendFlag(redirectURL, f.Flag)
	out.enter(StateDone)
	f.Log.Infow("sign-out complete", "redirect_url", out.Location)
	return out
}

func (f *SignOutFlow) wait(ctx context.Context, d time.Duration) {
	if f.sleep != nil {
		f.sleep(ctx, d)
		return
	}
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type signOutErrorPage struct {
	pageMeta
	Message  string
	Location string
}

// handleSignOut serves GET /auth/signout-redirect?redirect_url=...
func (b *Bridge) handleSignOut(w http.ResponseWriter, r *http.Request) {
	out := b.signOut.Run(r.Context(), w, r, b.snapshot(r), r.URL.Query().Get("redirect_url"))
	if out.State == StateDone {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Location", out.Location)
		w.WriteHeader(http.StatusSeeOther)
		return
	}

	page := signOutErrorPage{
		pageMeta: pageMeta{PageTitle: "Sign out error", RefreshURL: out.Location, RefreshDelay: out.Delay},
		Message:  "An error occurred while signing out.",
		Location: out.Location,
	}
	status := http.StatusBadGateway
	if errors.Is(out.Err, ErrAllowListRejected) {
		page.Message = "Invalid redirect URL."
		status = http.StatusBadRequest
	}
	b.render(w, status, "signout_error.html", page)
}
