package bridge

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"authbridge/pkg/metrics"
)

const (
	corsAllowMethods = "GET,POST,PUT,DELETE,OPTIONS"
	corsAllowHeaders = "Content-Type,Authorization"
)

// ProviderCORS guards the identity provider's reserved path prefix. The
// Origin is echoed only when it exactly matches a registered satellite
// origin. Preflights end here with 200; other matching requests go to the
// provider proxy when one is configured, else to next.
func (b *Bridge) ProviderCORS(next http.Handler) http.Handler {
	prefix := strings.TrimRight(b.cfg.IdPPathPrefix, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !inNamespace(r.URL.Path, prefix) {
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		allowed := b.snapshot(r).HasOrigin(origin)
		preflight := r.Method == http.MethodOptions
		metrics.CORSRequests.WithLabelValues(strconv.FormatBool(allowed), strconv.FormatBool(preflight)).Inc()

		h := w.Header()
		h.Add("Vary", "Origin")
		if allowed {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
		} else if origin != "" {
			b.log.Debugw("provider request from unregistered origin", "origin", origin, "path", r.URL.Path)
		}

		if preflight {
			w.WriteHeader(http.StatusOK)
			return
		}
		if b.proxy != nil {
			b.proxy.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func inNamespace(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// newProviderProxy forwards the prefix namespace to the provider's frontend
// API with the prefix stripped. Upstream CORS headers are dropped so the
// allow-listed ones set by ProviderCORS are the only ones the browser sees.
func newProviderProxy(upstream *url.URL, prefix string, log *zap.SugaredLogger) *httputil.ReverseProxy {
	prefix = strings.TrimRight(prefix, "/")
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, prefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			for k := range resp.Header {
				if strings.HasPrefix(k, "Access-Control-") {
					resp.Header.Del(k)
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warnw("provider proxy failed", "path", r.URL.Path, "err", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}
