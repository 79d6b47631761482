package memory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auth-agent/Auth-Agent/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestAgentCRUD(t *testing.T) {
	ctx := context.Background()
	st := New(testLogger())

	a := storage.Agent{AgentID: "agent-1", SecretHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, st.CreateAgent(ctx, a))
	require.ErrorIs(t, st.CreateAgent(ctx, a), storage.ErrAlreadyExists)

	got, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	require.Equal(t, a, got)

	agents, err := st.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)

	require.NoError(t, st.DeleteAgent(ctx, "agent-1"))
	_, err = st.GetAgent(ctx, "agent-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClientUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	st := New(testLogger())

	c := storage.Client{ClientID: "client-1", Name: "Example"}
	require.NoError(t, st.CreateClient(ctx, c))

	err := st.UpdateClient(ctx, "client-1", func(c storage.Client) (storage.Client, error) {
		c.Name = "Renamed"
		return c, nil
	})
	require.NoError(t, err)

	got, err := st.GetClient(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)

	err = st.UpdateClient(ctx, "does-not-exist", func(c storage.Client) (storage.Client, error) {
		return c, nil
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuthRequestLifecycleAndCode(t *testing.T) {
	ctx := context.Background()
	st := New(testLogger())

	now := time.Now()
	req := storage.AuthRequest{
		RequestID: "req-1",
		ClientID:  "client-1",
		Status:    storage.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, st.CreateAuthRequest(ctx, req))

	err := st.UpdateAuthRequest(ctx, "req-1", func(a storage.AuthRequest) (storage.AuthRequest, error) {
		a.Status = storage.StatusAuthenticated
		a.Code = "code-1"
		return a, nil
	})
	require.NoError(t, err)

	require.NoError(t, st.BindCode(ctx, "code-1", "req-1"))
	require.ErrorIs(t, st.BindCode(ctx, "code-1", "req-1"), storage.ErrAlreadyExists)

	requestID, err := st.ResolveCode(ctx, "code-1")
	require.NoError(t, err)
	require.Equal(t, "req-1", requestID)

	require.NoError(t, st.ConsumeCode(ctx, "code-1"))
	_, err = st.ResolveCode(ctx, "code-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenAndRefreshEntryRevocation(t *testing.T) {
	ctx := context.Background()
	st := New(testLogger())

	tok := storage.Token{
		TokenID:      "tok-1",
		AccessToken:  "access-xyz",
		RefreshToken: "refresh-xyz",
		AgentID:      "agent-1",
		ClientID:     "client-1",
	}
	require.NoError(t, st.CreateToken(ctx, tok))

	found, err := st.FindTokenByAccess(ctx, "access-xyz")
	require.NoError(t, err)
	require.Equal(t, "tok-1", found.TokenID)

	require.NoError(t, st.RevokeToken(ctx, "tok-1"))
	found, err = st.FindTokenByAccess(ctx, "access-xyz")
	require.NoError(t, err)
	require.True(t, found.Revoked)

	entry := storage.RefreshEntry{RefreshToken: "refresh-xyz", TokenID: "tok-1", ClientID: "client-1"}
	require.NoError(t, st.CreateRefreshEntry(ctx, entry))
	require.NoError(t, st.RevokeRefresh(ctx, "refresh-xyz"))

	got, err := st.GetRefreshEntry(ctx, "refresh-xyz")
	require.NoError(t, err)
	require.True(t, got.Revoked)
}

func TestUpdateRefreshEntryRepointsTokenID(t *testing.T) {
	ctx := context.Background()
	st := New(testLogger())

	require.NoError(t, st.CreateRefreshEntry(ctx, storage.RefreshEntry{
		RefreshToken: "refresh-xyz",
		TokenID:      "tok-1",
		ClientID:     "client-1",
	}))

	err := st.UpdateRefreshEntry(ctx, "refresh-xyz", func(r storage.RefreshEntry) (storage.RefreshEntry, error) {
		r.TokenID = "tok-2"
		return r, nil
	})
	require.NoError(t, err)

	got, err := st.GetRefreshEntry(ctx, "refresh-xyz")
	require.NoError(t, err)
	require.Equal(t, "tok-2", got.TokenID)

	err = st.UpdateRefreshEntry(ctx, "does-not-exist", func(r storage.RefreshEntry) (storage.RefreshEntry, error) {
		return r, nil
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGarbageCollectSweepsExpiredRequestsAndRefreshTokens(t *testing.T) {
	ctx := context.Background()
	st := New(testLogger())

	now := time.Now()
	expired := storage.AuthRequest{
		RequestID: "expired-req",
		Status:    storage.StatusPending,
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	}
	live := storage.AuthRequest{
		RequestID: "live-req",
		Status:    storage.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, st.CreateAuthRequest(ctx, expired))
	require.NoError(t, st.CreateAuthRequest(ctx, live))
	require.NoError(t, st.BindCode(ctx, "expired-code", "expired-req"))

	expiredRefresh := storage.RefreshEntry{RefreshToken: "expired-refresh", ExpiresAt: now.Add(-time.Minute)}
	liveRefresh := storage.RefreshEntry{RefreshToken: "live-refresh", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, st.CreateRefreshEntry(ctx, expiredRefresh))
	require.NoError(t, st.CreateRefreshEntry(ctx, liveRefresh))

	result, err := st.GarbageCollect(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.AuthRequests)
	require.Equal(t, int64(1), result.RefreshTokens)

	_, err = st.GetAuthRequest(ctx, "expired-req")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.GetAuthRequest(ctx, "live-req")
	require.NoError(t, err)

	_, err = st.ResolveCode(ctx, "expired-code")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.GetRefreshEntry(ctx, "expired-refresh")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.GetRefreshEntry(ctx, "live-refresh")
	require.NoError(t, err)
}

func TestSweepRunsUntilContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := New(testLogger())

	now := time.Now()
	require.NoError(t, st.CreateAuthRequest(ctx, storage.AuthRequest{
		RequestID: "sweep-me",
		Status:    storage.StatusPending,
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	}))

	done := make(chan struct{})
	go func() {
		Sweep(ctx, st, 5*time.Millisecond, testLogger(), time.Now)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := st.GetAuthRequest(context.Background(), "sweep-me")
		return err == storage.ErrNotFound
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
