package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auth-agent/Auth-Agent/cryptoutil"
	"github.com/auth-agent/Auth-Agent/storage"
	"github.com/auth-agent/Auth-Agent/storage/memory"
)

// testClock lets tests advance time deterministically without sleeping.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type testServer struct {
	*Server
	mux   http.Handler
	clock *testClock
	store storage.Storage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := newTestClock()
	st := memory.New(nil)

	srv, router, err := NewServer(Config{
		Issuer:    "https://auth.example.com",
		Storage:   st,
		JWTSecret: []byte("test-signing-key-32-bytes-long!"),
		Now:       clock.Now,
	})
	require.NoError(t, err)

	return &testServer{Server: srv, mux: router, clock: clock, store: st}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func createTestClient(t *testing.T, st storage.Storage, clientID, secret string, redirectURIs []string) {
	t.Helper()
	hash, err := cryptoutil.HashSecret(secret)
	require.NoError(t, err)
	require.NoError(t, st.CreateClient(context.Background(), storage.Client{
		ClientID:            clientID,
		SecretHash:          hash,
		Name:                "Test Client",
		AllowedRedirectURIs: redirectURIs,
		AllowedGrantTypes:   []string{grantTypeAuthorizationCode, grantTypeRefreshToken},
	}))
}

func createTestAgent(t *testing.T, st storage.Storage, agentID, secret string) {
	t.Helper()
	hash, err := cryptoutil.HashSecret(secret)
	require.NoError(t, err)
	require.NoError(t, st.CreateAgent(context.Background(), storage.Agent{AgentID: agentID, SecretHash: hash}))
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}
