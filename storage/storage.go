// Package storage defines the keyed repository contract that every other
// component of the authorization server depends on. Implementations are
// required to serialize mutations per key and to support the atomic
// compare-and-set operations the coordinator and token service rely on.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by a Storage implementation when a resource
	// cannot be located by key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by a Storage implementation when a
	// create call is given an ID that is already taken.
	ErrAlreadyExists = errors.New("id already exists")

	// ErrCodeAlreadyConsumed names a code that has already been deleted by
	// a prior exchange. The in-memory ConsumeCode does not return it: it
	// reports an unknown or already-consumed code as ErrNotFound.
	ErrCodeAlreadyConsumed = errors.New("code already consumed")
)

var idEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// NewID returns a random, URL-safe identifier suitable for request IDs,
// token IDs and generated agent/client IDs.
func NewID() string {
	return randomID("", 16)
}

// NewSecureToken returns a cryptographically secure token of at least n
// random bytes, base32-encoded and prefixed with prefix (e.g. "code_",
// "rt_"). The spec requires authorization codes to carry at least 32
// random bytes; callers pass that length explicitly.
func NewSecureToken(prefix string, n int) string {
	return randomID(prefix, n)
}

func randomID(prefix string, n int) string {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(err)
	}
	return prefix + strings.ToLower(idEncoding.EncodeToString(buf))
}

// Agent is a non-human principal authenticating with its own credential
// pair rather than an interactive login.
type Agent struct {
	AgentID    string
	SecretHash string
	UserEmail  string
	UserName   string
	CreatedAt  time.Time
}

// Client is a relying website registered to initiate authorization-code
// flows on behalf of its users' agents.
type Client struct {
	ClientID            string
	SecretHash          string
	Name                string
	AllowedRedirectURIs []string
	AllowedGrantTypes   []string
	CreatedAt           time.Time
}

// HasGrantType reports whether grantType is permitted for this client.
func (c Client) HasGrantType(grantType string) bool {
	for _, g := range c.AllowedGrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri is registered exactly (no prefix or
// path normalization is performed, per spec).
func (c Client) HasRedirectURI(uri string) bool {
	for _, u := range c.AllowedRedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// RequestStatus is the state of an in-flight authorization request.
type RequestStatus string

const (
	StatusPending       RequestStatus = "pending"
	StatusAuthenticated RequestStatus = "authenticated"
	StatusCompleted     RequestStatus = "completed"
	StatusExpired       RequestStatus = "expired"
	StatusError         RequestStatus = "error"
)

// AuthRequest is the server-side record of an in-flight authorization,
// created at /authorize and mutated by agent authentication and status
// polling.
type AuthRequest struct {
	RequestID           string
	ClientID            string
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string

	Status RequestStatus

	Code    string
	AgentID string
	Model   string
	Error   string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// AuthCode maps a single-use authorization code to the request it was
// issued for.
type AuthCode struct {
	Code      string
	RequestID string
}

// Token is an issued access/refresh token pair, bound to the agent,
// client, scope and model that produced it.
type Token struct {
	TokenID         string
	AccessToken     string
	RefreshToken    string
	AgentID         string
	ClientID        string
	Model           string
	Scope           string
	AccessExpiresAt time.Time
	RefreshExpiresAt time.Time
	CreatedAt       time.Time
	Revoked         bool
}

// RefreshEntry is the storage record backing an opaque refresh token.
// Refresh tokens are reused (not rotated) across refresh grants, per spec.
type RefreshEntry struct {
	RefreshToken string
	TokenID      string
	AgentID      string
	ClientID     string
	ExpiresAt    time.Time
	Revoked      bool
}

// GCResult reports how many expired rows a sweep removed.
type GCResult struct {
	AuthRequests  int64
	RefreshTokens int64
}

// IsEmpty reports whether the sweep removed nothing.
func (g GCResult) IsEmpty() bool {
	return g.AuthRequests == 0 && g.RefreshTokens == 0
}

// Storage is the keyed repository used by every other component. All
// mutating methods must be safe for concurrent use and serialize per key;
// finer-grained locking than "one mutex for the whole store" is allowed
// but not required at this scale.
type Storage interface {
	// Agents
	CreateAgent(ctx context.Context, a Agent) error
	GetAgent(ctx context.Context, agentID string) (Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	DeleteAgent(ctx context.Context, agentID string) error

	// Clients
	CreateClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, clientID string) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	UpdateClient(ctx context.Context, clientID string, updater func(Client) (Client, error)) error
	DeleteClient(ctx context.Context, clientID string) error

	// Authorization requests
	CreateAuthRequest(ctx context.Context, a AuthRequest) error
	GetAuthRequest(ctx context.Context, requestID string) (AuthRequest, error)
	// UpdateAuthRequest atomically reads, applies updater, and writes back
	// the result. It is the linearization point required by §5: the
	// poll_status authenticated→completed transition and the
	// authenticate_agent transitions must go through this method.
	UpdateAuthRequest(ctx context.Context, requestID string, updater func(AuthRequest) (AuthRequest, error)) error
	DeleteAuthRequest(ctx context.Context, requestID string) error

	// Authorization codes
	BindCode(ctx context.Context, code, requestID string) error
	ResolveCode(ctx context.Context, code string) (string, error)
	ConsumeCode(ctx context.Context, code string) error

	// Tokens
	CreateToken(ctx context.Context, t Token) error
	GetToken(ctx context.Context, tokenID string) (Token, error)
	FindTokenByAccess(ctx context.Context, accessToken string) (Token, error)
	RevokeToken(ctx context.Context, tokenID string) error

	// Refresh tokens
	CreateRefreshEntry(ctx context.Context, r RefreshEntry) error
	GetRefreshEntry(ctx context.Context, refreshToken string) (RefreshEntry, error)
	// UpdateRefreshEntry atomically reads, applies updater, and writes back
	// the result. Used to repoint a refresh entry at the Token row minted by
	// its most recent refresh grant, so revocation-by-refresh-token always
	// cascades onto the access token currently in circulation.
	UpdateRefreshEntry(ctx context.Context, refreshToken string, updater func(RefreshEntry) (RefreshEntry, error)) error
	RevokeRefresh(ctx context.Context, refreshToken string) error

	// GarbageCollect removes expired AuthRequest and RefreshEntry rows.
	// Expired Token rows may be swept too; introspection must reject them
	// on expiry regardless of whether the sweeper has run.
	GarbageCollect(ctx context.Context, now time.Time) (GCResult, error)

	Close() error
}
