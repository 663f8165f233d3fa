// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxSettleDelay bounds the pause between provider sign-out and the final redirect.
const MaxSettleDelay = time.Second

// Satellite sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceS3       = "s3"
)

// Allow-list matching modes for the sign-out redirect check.
const (
	AllowListContains  = "contains"
	AllowListSubdomain = "subdomain"
)

type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	// Primary (canonical) domain where auth cookies live.
	PrimaryURL string

	// Satellite registry
	SatelliteSource   string // file | postgres | s3
	SatellitesFile    string
	SatelliteDomains  []string // fallback list of origins
	SatelliteCacheTTL time.Duration
	WatchSatellites   bool

	// Remote stores
	DatabaseURL    string
	RedisURL       string
	S3Bucket       string
	S3Key          string
	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool
	S3AccessKey    string
	S3SecretKey    string

	// Redirect safety
	AllowListMode       string
	AllowedRedirectHost []string

	// Sign-out flow
	SignOutFlag  string
	SettleDelay  time.Duration
	GraceDelay   time.Duration
	RedirectWait time.Duration // delay before post-sign-in navigation

	// Reconciliation
	ReconcileURL      string
	ReconcileTimeout  time.Duration
	ReconcileGuardTTL time.Duration

	// Identity provider
	IdPPathPrefix    string
	IdPFrontendURL   string
	IdPJWKSURL       string
	IdPIssuer        string
	IdPAPIURL        string
	IdPSecretKey     string
	IdPSessionCookie string
	IdPClearCookies  []string

	// Admin API
	AdminToken       string
	AdminCORSOrigins []string

	DebugDoubleWrite bool
	ServiceName      string
	OTLPEndpoint     string
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		Env:      env("APP_ENV", "dev"),
		LogLevel: env("LOG_LEVEL", ""),
		HTTPAddr: env("HTTP_ADDR", ":8080"),

		PrimaryURL: env("PRIMARY_URL", "http://localhost:3000"),

		SatelliteSource:   strings.ToLower(env("SATELLITE_SOURCE", SourceFile)),
		SatellitesFile:    env("SATELLITES_CONFIG_FILE", "config/satellites.json"),
		SatelliteDomains:  envList("SATELLITE_DOMAINS"),
		SatelliteCacheTTL: envDur("SATELLITE_CACHE_TTL", 5*time.Minute),
		WatchSatellites:   envBool("SATELLITE_WATCH_FILE", true),

		DatabaseURL:    env("DATABASE_URL", ""),
		RedisURL:       env("REDIS_URL", ""),
		S3Bucket:       env("SATELLITE_S3_BUCKET", ""),
		S3Key:          env("SATELLITE_S3_KEY", "satellites.json"),
		S3Region:       env("AWS_REGION", "us-east-1"),
		S3Endpoint:     env("SATELLITE_S3_ENDPOINT", ""),
		S3UsePathStyle: envBool("SATELLITE_S3_PATH_STYLE", false),
		S3AccessKey:    env("SATELLITE_S3_ACCESS_KEY", ""),
		S3SecretKey:    env("SATELLITE_S3_SECRET_KEY", ""),

		AllowListMode:       strings.ToLower(env("REDIRECT_ALLOWLIST_MODE", AllowListContains)),
		AllowedRedirectHost: envList("REDIRECT_ALLOWED_HOSTS"),

		SignOutFlag:  env("SIGNOUT_FLAG", "clerk_signout"),
		SettleDelay:  envDur("SIGNOUT_SETTLE_DELAY", 500*time.Millisecond),
		GraceDelay:   envDur("SIGNOUT_GRACE_DELAY", 2*time.Second),
		RedirectWait: envDur("RECONCILE_REDIRECT_DELAY", time.Second),

		ReconcileURL:      env("RECONCILE_URL", ""),
		ReconcileTimeout:  envDur("RECONCILE_TIMEOUT", 5*time.Second),
		ReconcileGuardTTL: envDur("RECONCILE_GUARD_TTL", time.Hour),

		IdPPathPrefix:    env("IDP_PATH_PREFIX", "/__clerk"),
		IdPFrontendURL:   env("IDP_FRONTEND_API_URL", ""),
		IdPJWKSURL:       env("IDP_JWKS_URL", ""),
		IdPIssuer:        env("IDP_ISSUER", ""),
		IdPAPIURL:        env("IDP_API_URL", ""),
		IdPSecretKey:     env("IDP_SECRET_KEY", ""),
		IdPSessionCookie: env("IDP_SESSION_COOKIE", "__session"),
		IdPClearCookies:  envListDefault("IDP_CLEAR_COOKIES", []string{"__session", "__client_uat"}),

		AdminToken:       env("ADMIN_API_TOKEN", ""),
		AdminCORSOrigins: envList("ADMIN_CORS_ORIGINS"),

		DebugDoubleWrite: envBool("DEBUG_DOUBLE_WRITE", false),
		ServiceName:      env("OTEL_SERVICE_NAME", "authbridge"),
		OTLPEndpoint:     firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"), os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}
}

// Validate reports the first configuration problem that would make the
// service unsafe or unable to start.
func (c Config) Validate() error {
	if _, err := c.PrimaryHost(); err != nil {
		return err
	}
	if c.SettleDelay <= 0 || c.SettleDelay > MaxSettleDelay {
		return fmt.Errorf("SIGNOUT_SETTLE_DELAY must be in (0, %s], got %s", MaxSettleDelay, c.SettleDelay)
	}
	if c.GraceDelay < 0 || c.RedirectWait < 0 {
		return errors.New("delays must not be negative")
	}
	if c.SatelliteCacheTTL <= 0 {
		return errors.New("SATELLITE_CACHE_TTL must be positive")
	}
	switch c.AllowListMode {
	case AllowListContains, AllowListSubdomain:
	default:
		return fmt.Errorf("invalid REDIRECT_ALLOWLIST_MODE %q (want %s or %s)", c.AllowListMode, AllowListContains, AllowListSubdomain)
	}
	switch c.SatelliteSource {
	case SourceFile:
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres satellite source")
		}
	case SourceS3:
		if c.S3Bucket == "" {
			return errors.New("SATELLITE_S3_BUCKET is required for the s3 satellite source")
		}
	default:
		return fmt.Errorf("invalid SATELLITE_SOURCE %q", c.SatelliteSource)
	}
	if c.SignOutFlag == "" {
		return errors.New("SIGNOUT_FLAG must not be empty")
	}
	if !strings.HasPrefix(c.IdPPathPrefix, "/") {
		return fmt.Errorf("IDP_PATH_PREFIX must start with '/', got %q", c.IdPPathPrefix)
	}
	return nil
}

// PrimaryHost returns the lower-cased hostname of PrimaryURL.
func (c Config) PrimaryHost() (string, error) {
	u, err := url.Parse(c.PrimaryURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("PRIMARY_URL must be an absolute http(s) URL, got %q", c.PrimaryURL)
	}
	return strings.ToLower(u.Hostname()), nil
}

// ReconcileEndpoint is RECONCILE_URL, or the profile reconciliation route on
// the primary domain when unset.
func (c Config) ReconcileEndpoint() string {
	if c.ReconcileURL != "" {
		return c.ReconcileURL
	}
	return strings.TrimRight(c.PrimaryURL, "/") + "/api/auth/profile-reconciliation"
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDur accepts Go durations ("750ms", "5m") or a bare integer of milliseconds.
func envDur(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func envList(k string) []string {
	return envListDefault(k, nil)
}

func envListDefault(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
