package server

import (
	"log/slog"
	"time"

	"github.com/auth-agent/Auth-Agent/storage"
)

// Default TTLs, matching §6's configuration defaults.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultAuthRequestTTL  = 10 * time.Minute
	DefaultScope           = "openid profile"
	DefaultGCInterval       = 5 * time.Minute
)

// Config holds the server's configuration. Multiple Server instances
// sharing the same Storage are expected to be configured identically, in
// the teacher's own words about multi-instance dex deployments.
type Config struct {
	// Issuer is this server's issuer URL, used both as the "iss" JWT
	// claim and as the base for the discovery document.
	Issuer string

	// Storage is the backing persistence layer. Required.
	Storage storage.Storage

	// JWTSecret is the HS256 signing/verification key for access tokens.
	// Required.
	JWTSecret []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthRequestTTL  time.Duration
	DefaultScope    string

	// AllowedOrigins enables CORS on every route of the public router when
	// non-empty.
	AllowedOrigins []string

	// Now, if set, overrides time.Now for deterministic tests. It is not
	// used for the JWT exp check in cryptoutil.VerifyJWT, which always
	// reads the wall clock.
	Now func() time.Time

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.AuthRequestTTL == 0 {
		c.AuthRequestTTL = DefaultAuthRequestTTL
	}
	if c.DefaultScope == "" {
		c.DefaultScope = DefaultScope
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
