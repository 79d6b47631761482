// Package server implements the HTTP surface of the authorization server:
// the authorization-request coordinator, the token endpoint, introspection
// and revocation, discovery, and admin provisioning. The router
// construction, CORS wiring, and request instrumentation are modeled on
// the teacher's server.NewServer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/auth-agent/Auth-Agent/storage"
)

// Server ties the stateless crypto/validation primitives to the Storage
// and exposes them as HTTP handlers.
type Server struct {
	storage storage.Storage

	issuerURL url.URL
	jwtSecret []byte

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	authRequestTTL  time.Duration
	defaultScope    string

	now    func() time.Time
	logger *slog.Logger
}

// logRequestKey is the type of context keys this server stashes request
// metadata under, so log handlers can pull them back out.
type logRequestKey string

const (
	// RequestKeyRequestID is the context key carrying a per-request UUID.
	RequestKeyRequestID logRequestKey = "request_id"
	// RequestKeyRemoteIP is the context key carrying the caller's address.
	RequestKeyRemoteIP logRequestKey = "client_remote_addr"
)

// WithRequestID stamps a fresh request ID onto ctx.
func WithRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, RequestKeyRequestID, uuid.NewString())
}

// WithRemoteIP stamps the caller's address onto ctx.
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, RequestKeyRemoteIP, ip)
}

// NewServer validates cfg and constructs a Server plus its public-facing
// *mux.Router. Admin routes are returned by NewAdminServer so they can be
// bound to a separate listener.
func NewServer(cfg Config) (*Server, *mux.Router, error) {
	cfg.setDefaults()

	if cfg.Storage == nil {
		return nil, nil, errors.New("server: storage cannot be nil")
	}
	if cfg.Issuer == "" {
		return nil, nil, errors.New("server: issuer cannot be empty")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, nil, errors.New("server: jwt secret cannot be empty")
	}

	issuerURL, err := url.Parse(cfg.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("server: can't parse issuer URL: %w", err)
	}

	s := &Server{
		storage:         cfg.Storage,
		issuerURL:       *issuerURL,
		jwtSecret:       cfg.JWTSecret,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
		authRequestTTL:  cfg.AuthRequestTTL,
		defaultScope:    cfg.DefaultScope,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}

	r := mux.NewRouter().SkipClean(true).UseEncodedPath()
	r.NotFoundHandler = http.NotFoundHandler()

	instrument := newInstrumentation(prometheus.DefaultRegisterer)

	handle := func(p string, h http.HandlerFunc) {
		handler := instrument.wrap(p, withRequestContext(h))
		if len(cfg.AllowedOrigins) > 0 {
			cors := handlers.CORS(
				handlers.AllowedOrigins(cfg.AllowedOrigins),
				handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
			)
			r.Handle(path.Join(issuerURL.Path, p), cors(handler))
			return
		}
		r.Handle(path.Join(issuerURL.Path, p), handler)
	}

	handle("/authorize", s.handleAuthorize)
	handle("/api/agent/authenticate", s.handleAuthenticateAgent)
	handle("/api/check-status", s.handleCheckStatus)
	handle("/token", s.handleToken)
	handle("/introspect", s.handleIntrospect)
	handle("/revoke", s.handleRevoke)
	handle("/.well-known/oauth-authorization-server", s.handleDiscovery)
	handle("/.well-known/jwks.json", s.handleJWKS)

	return s, r, nil
}

// withRequestContext mirrors the teacher's handlerWithHeaders closure: it
// stamps a request ID and best-effort remote IP onto the request context
// before the real handler runs, so every downstream log line can carry
// them.
func withRequestContext(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestID(r.Context())
		if ip, err := remoteIP(r); err == nil {
			ctx = WithRemoteIP(ctx, ip)
		}
		h(w, r.WithContext(ctx))
	}
}

func remoteIP(r *http.Request) (string, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", err
	}
	if _, err := netip.ParseAddr(host); err != nil {
		return "", err
	}
	return host, nil
}
