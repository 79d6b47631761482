// Package memory provides an in-memory implementation of the storage
// interface, modeled on the teacher's storage/memory backend: one mutex
// guarding a set of maps, with create/get/list/update/delete built on top
// of a single "tx" helper.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auth-agent/Auth-Agent/storage"
)

var _ storage.Storage = (*memStorage)(nil)

// New returns an in-memory Storage. logger may be nil.
func New(logger *slog.Logger) storage.Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &memStorage{
		agents:    make(map[string]storage.Agent),
		clients:   make(map[string]storage.Client),
		authReqs:  make(map[string]storage.AuthRequest),
		authCodes: make(map[string]string),
		tokens:    make(map[string]storage.Token),
		refresh:   make(map[string]storage.RefreshEntry),
		logger:    logger,
	}
}

type memStorage struct {
	mu sync.Mutex

	agents    map[string]storage.Agent
	clients   map[string]storage.Client
	authReqs  map[string]storage.AuthRequest
	authCodes map[string]string // code -> request_id
	tokens    map[string]storage.Token
	refresh   map[string]storage.RefreshEntry

	logger *slog.Logger
}

func (s *memStorage) tx(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

func (s *memStorage) Close() error { return nil }

// --- Agents ---

func (s *memStorage) CreateAgent(ctx context.Context, a storage.Agent) (err error) {
	s.tx(func() {
		if _, ok := s.agents[a.AgentID]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.agents[a.AgentID] = a
	})
	return
}

func (s *memStorage) GetAgent(ctx context.Context, agentID string) (a storage.Agent, err error) {
	s.tx(func() {
		var ok bool
		if a, ok = s.agents[agentID]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) ListAgents(ctx context.Context) (agents []storage.Agent, err error) {
	s.tx(func() {
		for _, a := range s.agents {
			agents = append(agents, a)
		}
	})
	return
}

func (s *memStorage) DeleteAgent(ctx context.Context, agentID string) (err error) {
	s.tx(func() {
		if _, ok := s.agents[agentID]; !ok {
			err = storage.ErrNotFound
			return
		}
		delete(s.agents, agentID)
	})
	return
}

// --- Clients ---

func (s *memStorage) CreateClient(ctx context.Context, c storage.Client) (err error) {
	s.tx(func() {
		if _, ok := s.clients[c.ClientID]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.clients[c.ClientID] = c
	})
	return
}

func (s *memStorage) GetClient(ctx context.Context, clientID string) (c storage.Client, err error) {
	s.tx(func() {
		var ok bool
		if c, ok = s.clients[clientID]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) ListClients(ctx context.Context) (clients []storage.Client, err error) {
	s.tx(func() {
		for _, c := range s.clients {
			clients = append(clients, c)
		}
	})
	return
}

func (s *memStorage) UpdateClient(ctx context.Context, clientID string, updater func(storage.Client) (storage.Client, error)) (err error) {
	s.tx(func() {
		c, ok := s.clients[clientID]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		if c, err = updater(c); err == nil {
			s.clients[clientID] = c
		}
	})
	return
}

func (s *memStorage) DeleteClient(ctx context.Context, clientID string) (err error) {
	s.tx(func() {
		if _, ok := s.clients[clientID]; !ok {
			err = storage.ErrNotFound
			return
		}
		delete(s.clients, clientID)
	})
	return
}

// --- Authorization requests ---

func (s *memStorage) CreateAuthRequest(ctx context.Context, a storage.AuthRequest) (err error) {
	s.tx(func() {
		if _, ok := s.authReqs[a.RequestID]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.authReqs[a.RequestID] = a
	})
	return
}

func (s *memStorage) GetAuthRequest(ctx context.Context, requestID string) (a storage.AuthRequest, err error) {
	s.tx(func() {
		var ok bool
		if a, ok = s.authReqs[requestID]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

// UpdateAuthRequest is the linearization point for request state
// transitions: the whole read-modify-write happens while s.mu is held, so
// two concurrent pollers (or a poller racing an authenticate_agent call)
// can never both observe an authenticated->completed transition as theirs.
func (s *memStorage) UpdateAuthRequest(ctx context.Context, requestID string, updater func(storage.AuthRequest) (storage.AuthRequest, error)) (err error) {
	s.tx(func() {
		a, ok := s.authReqs[requestID]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		if a, err = updater(a); err == nil {
			s.authReqs[requestID] = a
		}
	})
	return
}

func (s *memStorage) DeleteAuthRequest(ctx context.Context, requestID string) (err error) {
	s.tx(func() {
		if _, ok := s.authReqs[requestID]; !ok {
			err = storage.ErrNotFound
			return
		}
		delete(s.authReqs, requestID)
	})
	return
}

// --- Authorization codes ---

func (s *memStorage) BindCode(ctx context.Context, code, requestID string) (err error) {
	s.tx(func() {
		if _, ok := s.authCodes[code]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.authCodes[code] = requestID
	})
	return
}

func (s *memStorage) ResolveCode(ctx context.Context, code string) (requestID string, err error) {
	s.tx(func() {
		var ok bool
		if requestID, ok = s.authCodes[code]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) ConsumeCode(ctx context.Context, code string) (err error) {
	s.tx(func() {
		if _, ok := s.authCodes[code]; !ok {
			err = storage.ErrNotFound
			return
		}
		delete(s.authCodes, code)
	})
	return
}

// --- Tokens ---

func (s *memStorage) CreateToken(ctx context.Context, t storage.Token) (err error) {
	s.tx(func() {
		if _, ok := s.tokens[t.TokenID]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.tokens[t.TokenID] = t
	})
	return
}

func (s *memStorage) GetToken(ctx context.Context, tokenID string) (t storage.Token, err error) {
	s.tx(func() {
		var ok bool
		if t, ok = s.tokens[tokenID]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

// FindTokenByAccess performs the linear scan the spec explicitly allows at
// core scale. A production-scale deployment should key tokens by the
// access-token string (or a hash of it) instead.
func (s *memStorage) FindTokenByAccess(ctx context.Context, accessToken string) (t storage.Token, err error) {
	s.tx(func() {
		for _, tok := range s.tokens {
			if tok.AccessToken == accessToken {
				t = tok
				return
			}
		}
		err = storage.ErrNotFound
	})
	return
}

func (s *memStorage) RevokeToken(ctx context.Context, tokenID string) (err error) {
	s.tx(func() {
		t, ok := s.tokens[tokenID]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		t.Revoked = true
		s.tokens[tokenID] = t
	})
	return
}

// --- Refresh tokens ---

func (s *memStorage) CreateRefreshEntry(ctx context.Context, r storage.RefreshEntry) (err error) {
	s.tx(func() {
		if _, ok := s.refresh[r.RefreshToken]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.refresh[r.RefreshToken] = r
	})
	return
}

func (s *memStorage) GetRefreshEntry(ctx context.Context, refreshToken string) (r storage.RefreshEntry, err error) {
	s.tx(func() {
		var ok bool
		if r, ok = s.refresh[refreshToken]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) UpdateRefreshEntry(ctx context.Context, refreshToken string, updater func(storage.RefreshEntry) (storage.RefreshEntry, error)) (err error) {
	s.tx(func() {
		r, ok := s.refresh[refreshToken]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		if r, err = updater(r); err == nil {
			s.refresh[refreshToken] = r
		}
	})
	return
}

func (s *memStorage) RevokeRefresh(ctx context.Context, refreshToken string) (err error) {
	s.tx(func() {
		r, ok := s.refresh[refreshToken]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		r.Revoked = true
		s.refresh[refreshToken] = r
	})
	return
}

// GarbageCollect removes expired AuthRequest and RefreshEntry rows. Token
// rows are left in place; introspection rejects expired tokens on read.
func (s *memStorage) GarbageCollect(ctx context.Context, now time.Time) (result storage.GCResult, err error) {
	s.tx(func() {
		for id, a := range s.authReqs {
			if now.After(a.ExpiresAt) {
				delete(s.authReqs, id)
				if code := codeForRequest(s.authCodes, id); code != "" {
					delete(s.authCodes, code)
				}
				result.AuthRequests++
			}
		}
		for token, r := range s.refresh {
			if now.After(r.ExpiresAt) {
				delete(s.refresh, token)
				result.RefreshTokens++
			}
		}
	})
	return result, nil
}

func codeForRequest(codes map[string]string, requestID string) string {
	for code, rid := range codes {
		if rid == requestID {
			return code
		}
	}
	return ""
}

// Sweep runs GarbageCollect on a fixed interval until ctx is canceled. The
// spec calls for a 5-minute period by design; callers may pass a shorter
// interval in tests.
func Sweep(ctx context.Context, s storage.Storage, interval time.Duration, logger *slog.Logger, now func() time.Time) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.GarbageCollect(ctx, now())
			if err != nil {
				logger.Error("garbage collection failed", "err", err)
				continue
			}
			if !result.IsEmpty() {
				logger.Info("swept expired records",
					"auth_requests", result.AuthRequests,
					"refresh_tokens", result.RefreshTokens)
			}
		}
	}
}
