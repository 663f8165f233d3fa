// Package idp is the narrow view of the external identity provider: who is
// signed in, and how to end that session without the provider navigating.
package idp

import (
	"context"
	"fmt"
	"net/http"
)

// Session is the part of the provider's session this service reads.
type Session struct {
	SignedIn  bool
	SessionID string
	UserID    string
	Token     string
}

// SignOutOptions mirrors the provider SDK's sign-out options. RedirectURL is
// always left empty by callers here; the final navigation is owned by the
// bridge so it can append the completion flag.
type SignOutOptions struct {
	RedirectURL string
}

type Provider interface {
	Session(r *http.Request) (Session, error)
	SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request, opts SignOutOptions) error
}

// ProviderCallError is a failed call to the identity provider.
type ProviderCallError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderCallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("identity provider %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("identity provider %s: %v", e.Op, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }
