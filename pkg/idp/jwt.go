package idp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"authbridge/pkg/config"
)

// ErrNotConfigured is returned when no JWKS URL is configured.
var ErrNotConfigured = errors.New("identity provider not configured")

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
	ttl  time.Duration
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, client *http.Client) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url, jwk.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(c.ttl)}
	return set, nil
}

// JWTProvider reads provider-issued session JWTs (cookie or bearer header),
// verifies them against the provider JWKS, and signs out by revoking the
// session through the provider backend API and expiring the session cookies.
type JWTProvider struct {
	jwksURL      string
	issuer       string
	apiURL       string
	secretKey    string
	cookie       string
	clearCookies []string
	secure       bool

	client *http.Client
	cache  *jwksCache
	log    *zap.SugaredLogger
}

func NewJWTProvider(cfg config.Config, log *zap.SugaredLogger) *JWTProvider {
	return &JWTProvider{
		jwksURL:      cfg.IdPJWKSURL,
		issuer:       strings.TrimRight(cfg.IdPIssuer, "/"),
		apiURL:       strings.TrimRight(cfg.IdPAPIURL, "/"),
		secretKey:    cfg.IdPSecretKey,
		cookie:       cfg.IdPSessionCookie,
		clearCookies: cfg.IdPClearCookies,
		secure:       strings.HasPrefix(cfg.PrimaryURL, "https://"),
		client:       &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cache:        &jwksCache{ttl: 6 * time.Hour},
		log:          log,
	}
}

func (p *JWTProvider) token(r *http.Request) string {
	if c, err := r.Cookie(p.cookie); err == nil && c.Value != "" {
		return c.Value
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

// Session reports the verified session on r. A missing or invalid token is
// a signed-out session, not an error; only an unreachable JWKS is.
func (p *JWTProvider) Session(r *http.Request) (Session, error) {
	raw := p.token(r)
	if raw == "" {
		return Session{}, nil
	}
	if p.jwksURL == "" {
		return Session{}, ErrNotConfigured
	}
	set, err := p.cache.get(r.Context(), p.jwksURL, p.client)
	if err != nil {
		return Session{}, &ProviderCallError{Op: "jwks", Err: err}
	}
	opts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithValidate(true), jwt.WithAcceptableSkew(5 * time.Second)}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	tok, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		p.log.Debugw("ignoring invalid session token", "err", err)
		return Session{}, nil
	}
	s := Session{SignedIn: true, UserID: tok.Subject(), Token: raw}
	if sid, ok := tok.Get("sid"); ok {
		s.SessionID, _ = sid.(string)
	}
	return s, nil
}

// SignOut revokes the current session (when there is one and a backend API
// is configured) and expires the session cookies. The cookies are expired
// even when revocation fails. It never redirects.
func (p *JWTProvider) SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request, _ SignOutOptions) error {
	defer p.expireCookies(w)

	sess, err := p.Session(r)
	if errors.Is(err, ErrNotConfigured) {
		// nothing to revoke against; expiring the cookies is all we can do
		return nil
	}
	if err != nil {
		return err
	}
	if sess.SessionID == "" || p.apiURL == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s/v1/sessions/%s/revoke", p.apiURL, url.PathEscape(sess.SessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &ProviderCallError{Op: "revoke", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return &ProviderCallError{Op: "revoke", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return &ProviderCallError{Op: "revoke", Status: resp.StatusCode}
	}
	p.log.Infow("session revoked", "sid", sess.SessionID, "user", sess.UserID)
	return nil
}

func (p *JWTProvider) expireCookies(w http.ResponseWriter) {
	for _, name := range p.clearCookies {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			Secure:   p.secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
