// Package redirect classifies caller-supplied redirect URLs. Resolve is the
// conservative, exact-match view used for branding; AllowList is the looser
// gate used only on the sign-out path.
package redirect

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"authbridge/pkg/metrics"
	"authbridge/pkg/satellites"
)

// Target is the closed set of resolution results: Relative, Primary,
// Satellite or Invalid. Consumers switch on the concrete type.
type Target interface {
	Kind() string
	target()
}

// Relative is a path on the current origin. It never crosses origins.
type Relative struct {
	Path string
}

// Primary is an absolute URL on the primary domain.
type Primary struct {
	URL  *url.URL
	Path string
}

// Satellite is an absolute URL whose hostname exactly matches an enabled satellite.
type Satellite struct {
	Record satellites.Record
	URL    *url.URL
	Path   string
}

// Invalid is anything that cannot be followed safely.
type Invalid struct {
	Raw string
	Err error
}

func (Relative) Kind() string  { return "relative" }
func (Primary) Kind() string   { return "primary" }
func (Satellite) Kind() string { return "satellite" }
func (Invalid) Kind() string   { return "invalid" }

func (Relative) target()  {}
func (Primary) target()   {}
func (Satellite) target() {}
func (Invalid) target()   {}

// ErrUnregisteredHost marks an absolute URL whose host is neither the
// primary domain nor a registered satellite.
var ErrUnregisteredHost = errors.New("host is not registered")

// ParseError is a redirect string that could not be understood as a URL.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("redirect %q: %s: %v", e.Raw, e.Reason, e.Err)
	}
	return fmt.Sprintf("redirect %q: %s", e.Raw, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

var schemeRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)

// parse splits raw into a relative path or an absolute http(s) URL.
// Network-path references ("//host", "/\host", "\\host") are absolute: browsers
// resolve them against the current scheme and leave the origin.
// Anything starting with a scheme-shaped prefix counts as having a scheme, so
// "localhost:3000/x" parses as scheme "localhost" and is rejected.
func parse(raw string) (rel string, abs *url.URL, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/", nil, nil
	}
	for _, c := range raw {
		if c < 0x20 || c == 0x7f {
			return "", nil, &ParseError{Raw: raw, Reason: "control character"}
		}
	}

	candidate := raw
	if lead := strings.ReplaceAll(raw[:min(2, len(raw))], `\`, "/"); lead == "//" {
		candidate = "https:" + strings.ReplaceAll(raw, `\`, "/")
	} else if !schemeRE.MatchString(raw) {
		return raw, nil, nil
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "", nil, &ParseError{Raw: raw, Reason: "malformed url", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil, &ParseError{Raw: raw, Reason: fmt.Sprintf("scheme %q not allowed", u.Scheme)}
	}
	if u.Hostname() == "" {
		return "", nil, &ParseError{Raw: raw, Reason: "missing host"}
	}
	return "", u, nil
}

func pathOf(u *url.URL) string {
	p := u.RequestURI()
	if u.Fragment != "" {
		p += "#" + u.EscapedFragment()
	}
	return p
}

// Resolver classifies redirect strings against the primary hostname and an
// exact-match satellite lookup. It never suffix-matches.
type Resolver struct {
	PrimaryHost string
}

func (r Resolver) Resolve(snap *satellites.Snapshot, raw string) Target {
	t := r.resolve(snap, raw)
	metrics.RedirectResolutions.WithLabelValues(t.Kind()).Inc()
	return t
}

func (r Resolver) resolve(snap *satellites.Snapshot, raw string) Target {
	rel, u, err := parse(raw)
	if err != nil {
		return Invalid{Raw: raw, Err: err}
	}
	if u == nil {
		return Relative{Path: rel}
	}
	host := strings.ToLower(u.Hostname())
	if host == strings.ToLower(r.PrimaryHost) {
		return Primary{URL: u, Path: pathOf(u)}
	}
	if rec, ok := snap.ResolveByHostname(host); ok {
		return Satellite{Record: rec, URL: u, Path: pathOf(u)}
	}
	return Invalid{Raw: raw, Err: fmt.Errorf("%w: %s", ErrUnregisteredHost, host)}
}

// Destination is where a browser should be sent for t. Invalid targets map
// to fallback, never to the raw string.
func Destination(t Target, fallback string) string {
	switch v := t.(type) {
	case Relative:
		return v.Path
	case Primary:
		return v.URL.String()
	case Satellite:
		return v.URL.String()
	case Invalid:
		return fallback
	default:
		return fallback
	}
}
