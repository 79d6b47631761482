package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auth-agent/Auth-Agent/storage/memory"
)

func newTestAdmin(t *testing.T) http.Handler {
	t.Helper()
	st := memory.New(nil)
	return NewAdminServer(st, nil)
}

func adminDo(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *strings.Reader
	if body != "" {
		r = strings.NewReader(body)
	} else {
		r = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminCreateAndGetAgent(t *testing.T) {
	h := newTestAdmin(t)

	createRec := adminDo(t, h, http.MethodPost, "/agents", `{"agent_id":"agent-1","user_email":"a@example.com"}`)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created agentResponse
	decodeJSON(t, createRec, &created)
	require.NotEmpty(t, created.AgentSecret, "create_agent must return the generated secret exactly once")
	require.NotEmpty(t, created.Warning)

	getRec := adminDo(t, h, http.MethodGet, "/agents/agent-1", "")
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp agentResponse
	decodeJSON(t, getRec, &resp)
	require.Equal(t, "agent-1", resp.AgentID)
	require.Equal(t, "a@example.com", resp.UserEmail)
	require.Empty(t, resp.AgentSecret, "the secret must never be recoverable after creation")
}

func TestAdminCreateAgentDefaultsIDAndRequiresEmail(t *testing.T) {
	h := newTestAdmin(t)

	rec := adminDo(t, h, http.MethodPost, "/agents", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "user_email is required")

	createRec := adminDo(t, h, http.MethodPost, "/agents", `{"user_email":"a@example.com"}`)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created agentResponse
	decodeJSON(t, createRec, &created)
	require.True(t, strings.HasPrefix(created.AgentID, "agent_"), "agent_id must default to agent_+random16")
}

func TestAdminCreateAgentRejectsShortIdentifier(t *testing.T) {
	h := newTestAdmin(t)

	rec := adminDo(t, h, http.MethodPost, "/agents", `{"agent_id":"ab","user_email":"a@example.com"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCreateClientAndUpdate(t *testing.T) {
	h := newTestAdmin(t)

	createRec := adminDo(t, h, http.MethodPost, "/clients",
		`{"client_id":"client-1","name":"Example","allowed_redirect_uris":["https://example.com/cb"]}`)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created clientResponse
	decodeJSON(t, createRec, &created)
	require.NotEmpty(t, created.ClientSecret, "create_client must return the generated secret exactly once")
	require.NotEmpty(t, created.Warning)

	updateRec := adminDo(t, h, http.MethodPatch, "/clients/client-1", `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, updateRec.Code)

	var resp clientResponse
	decodeJSON(t, updateRec, &resp)
	require.Equal(t, "Renamed", resp.Name)
	require.Equal(t, []string{"https://example.com/cb"}, resp.AllowedRedirectURIs)
	require.Empty(t, resp.ClientSecret, "the secret must never be recoverable after creation")
}

func TestAdminCreateClientDefaultsID(t *testing.T) {
	h := newTestAdmin(t)

	createRec := adminDo(t, h, http.MethodPost, "/clients", `{}`)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created clientResponse
	decodeJSON(t, createRec, &created)
	require.True(t, strings.HasPrefix(created.ClientID, "client_"), "client_id must default to client_+random16")
}

func TestAdminDeleteAgentThenGetIsNotFound(t *testing.T) {
	h := newTestAdmin(t)

	adminDo(t, h, http.MethodPost, "/agents", `{"agent_id":"agent-1","user_email":"a@example.com"}`)
	deleteRec := adminDo(t, h, http.MethodDelete, "/agents/agent-1", "")
	require.Equal(t, http.StatusNoContent, deleteRec.Code)

	getRec := adminDo(t, h, http.MethodGet, "/agents/agent-1", "")
	require.Equal(t, http.StatusNotFound, getRec.Code)
}
