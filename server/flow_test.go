package server

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pkcePair() (verifier, challenge string) {
	verifier = "test-code-verifier-that-is-reasonably-long-43chars"
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return
}

// beginAuthorize drives /authorize and extracts the request_id embedded in
// the landing page.
func beginAuthorize(t *testing.T, ts *testServer, clientID, redirectURI, challenge string) string {
	t.Helper()
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"state":                 {"xyz"},
	}
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	const marker = `data-request-id="`
	idx := strings.Index(body, marker)
	require.NotEqual(t, -1, idx, "landing page missing request id marker")
	rest := body[idx+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}

func authenticateAgent(t *testing.T, ts *testServer, requestID, agentID, secret, model string) *httptest.ResponseRecorder {
	t.Helper()
	payload := `{"request_id":"` + requestID + `","agent_id":"` + agentID + `","agent_secret":"` + secret + `","model":"` + model + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/agent/authenticate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

func checkStatus(t *testing.T, ts *testServer, requestID string) statusResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/check-status?request_id="+requestID, nil)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	decodeJSON(t, rec, &resp)
	return resp
}

func exchangeCode(t *testing.T, ts *testServer, clientID, secret, code, verifier string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{
		"grant_type":    {grantTypeAuthorizationCode},
		"client_id":     {clientID},
		"client_secret": {secret},
		"code":          {code},
		"code_verifier": {verifier},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

// TestHappyPath covers spec scenario 1: authorize -> authenticate ->
// poll -> exchange for tokens.
func TestHappyPath(t *testing.T) {
	ts := newTestServer(t)
	createTestClient(t, ts.store, "client-1", "client-secret", []string{"https://app.example.com/callback"})
	createTestAgent(t, ts.store, "agent-1", "agent-secret")

	verifier, challenge := pkcePair()
	requestID := beginAuthorize(t, ts, "client-1", "https://app.example.com/callback", challenge)

	authRec := authenticateAgent(t, ts, requestID, "agent-1", "agent-secret", "gpt-5")
	require.Equal(t, http.StatusOK, authRec.Code)

	status := checkStatus(t, ts, requestID)
	require.Equal(t, "authenticated", status.Status)
	require.NotEmpty(t, status.Code)
	require.Equal(t, "xyz", status.State)

	// A second poll after completion never repeats the code. It runs before
	// the exchange, because a successful exchange deletes the request.
	second := checkStatus(t, ts, requestID)
	require.Equal(t, "completed", second.Status)
	require.Empty(t, second.Code)

	tokenRec := exchangeCode(t, ts, "client-1", "client-secret", status.Code, verifier)
	require.Equal(t, http.StatusOK, tokenRec.Code)

	var tok tokenResponse
	decodeJSON(t, tokenRec, &tok)
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)
}

// TestCodeReplayIsRejected covers spec scenario 2: exchanging the same
// authorization code twice must fail the second time.
func TestCodeReplayIsRejected(t *testing.T) {
	ts := newTestServer(t)
	createTestClient(t, ts.store, "client-1", "client-secret", []string{"https://app.example.com/callback"})
	createTestAgent(t, ts.store, "agent-1", "agent-secret")

	verifier, challenge := pkcePair()
	requestID := beginAuthorize(t, ts, "client-1", "https://app.example.com/callback", challenge)
	authenticateAgent(t, ts, requestID, "agent-1", "agent-secret", "gpt-5")
	status := checkStatus(t, ts, requestID)

	first := exchangeCode(t, ts, "client-1", "client-secret", status.Code, verifier)
	require.Equal(t, http.StatusOK, first.Code)

	second := exchangeCode(t, ts, "client-1", "client-secret", status.Code, verifier)
	require.Equal(t, http.StatusBadRequest, second.Code)
	var errBody errorBody
	decodeJSON(t, second, &errBody)
	require.Equal(t, ErrInvalidGrant, errBody.Error)
}

// TestWrongPKCEVerifierIsRejected covers spec scenario 3.
func TestWrongPKCEVerifierIsRejected(t *testing.T) {
	ts := newTestServer(t)
	createTestClient(t, ts.store, "client-1", "client-secret", []string{"https://app.example.com/callback"})
	createTestAgent(t, ts.store, "agent-1", "agent-secret")

	_, challenge := pkcePair()
	requestID := beginAuthorize(t, ts, "client-1", "https://app.example.com/callback", challenge)
	authenticateAgent(t, ts, requestID, "agent-1", "agent-secret", "gpt-5")
	status := checkStatus(t, ts, requestID)

	rec := exchangeCode(t, ts, "client-1", "client-secret", status.Code, "completely-wrong-verifier")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody errorBody
	decodeJSON(t, rec, &errBody)
	require.Equal(t, ErrInvalidGrant, errBody.Error)

	// The code is burned even on a failed exchange attempt: a retry with
	// the correct verifier must also fail.
	verifier, _ := pkcePair()
	retry := exchangeCode(t, ts, "client-1", "client-secret", status.Code, verifier)
	require.Equal(t, http.StatusBadRequest, retry.Code)
}

// TestRefreshThenRevokeCascades covers spec scenario 4: a refreshed
// access token still works, and revoking the refresh token invalidates
// both halves of the pair.
func TestRefreshThenRevokeCascades(t *testing.T) {
	ts := newTestServer(t)
	createTestClient(t, ts.store, "client-1", "client-secret", []string{"https://app.example.com/callback"})
	createTestAgent(t, ts.store, "agent-1", "agent-secret")

	verifier, challenge := pkcePair()
	requestID := beginAuthorize(t, ts, "client-1", "https://app.example.com/callback", challenge)
	authenticateAgent(t, ts, requestID, "agent-1", "agent-secret", "gpt-5")
	status := checkStatus(t, ts, requestID)

	tokenRec := exchangeCode(t, ts, "client-1", "client-secret", status.Code, verifier)
	var tok tokenResponse
	decodeJSON(t, tokenRec, &tok)

	form := url.Values{
		"grant_type":    {grantTypeRefreshToken},
		"client_id":     {"client-1"},
		"client_secret": {"client-secret"},
		"refresh_token": {tok.RefreshToken},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	refreshRec := ts.do(req)
	require.Equal(t, http.StatusOK, refreshRec.Code)

	var refreshed tokenResponse
	decodeJSON(t, refreshRec, &refreshed)
	require.Equal(t, tok.RefreshToken, refreshed.RefreshToken)
	require.NotEqual(t, tok.AccessToken, refreshed.AccessToken)

	revokeForm := url.Values{
		"client_id":       {"client-1"},
		"client_secret":   {"client-secret"},
		"token":           {tok.RefreshToken},
		"token_type_hint": {"refresh_token"},
	}
	revokeReq := httptest.NewRequest(http.MethodPost, "/revoke", strings.NewReader(revokeForm.Encode()))
	revokeReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	revokeRec := ts.do(revokeReq)
	require.Equal(t, http.StatusOK, revokeRec.Code)

	introspectForm := url.Values{
		"client_id":     {"client-1"},
		"client_secret": {"client-secret"},
		"token":         {refreshed.AccessToken},
	}
	introspectReq := httptest.NewRequest(http.MethodPost, "/introspect", strings.NewReader(introspectForm.Encode()))
	introspectReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	introspectRec := ts.do(introspectReq)

	var introspection introspectionResponse
	decodeJSON(t, introspectRec, &introspection)
	require.False(t, introspection.Active)
}

// TestExpiredRequestIsRejected covers spec scenario 5.
func TestExpiredRequestIsRejected(t *testing.T) {
	ts := newTestServer(t)
	createTestClient(t, ts.store, "client-1", "client-secret", []string{"https://app.example.com/callback"})
	createTestAgent(t, ts.store, "agent-1", "agent-secret")

	_, challenge := pkcePair()
	requestID := beginAuthorize(t, ts, "client-1", "https://app.example.com/callback", challenge)

	ts.clock.Advance(DefaultAuthRequestTTL + time.Minute)

	rec := authenticateAgent(t, ts, requestID, "agent-1", "agent-secret", "gpt-5")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody errorBody
	decodeJSON(t, rec, &errBody)
	require.Equal(t, ErrRequestExpired, errBody.Error)

	status := checkStatus(t, ts, requestID)
	require.Equal(t, "error", status.Status)
	require.Equal(t, "request_expired", status.Error)
}

// TestCrossClientCodeMisuseIsRejected covers spec scenario 6: a code
// bound to one client cannot be redeemed by a different client.
func TestCrossClientCodeMisuseIsRejected(t *testing.T) {
	ts := newTestServer(t)
	createTestClient(t, ts.store, "client-1", "client-secret", []string{"https://app.example.com/callback"})
	createTestClient(t, ts.store, "client-2", "other-secret", []string{"https://other.example.com/callback"})
	createTestAgent(t, ts.store, "agent-1", "agent-secret")

	verifier, challenge := pkcePair()
	requestID := beginAuthorize(t, ts, "client-1", "https://app.example.com/callback", challenge)
	authenticateAgent(t, ts, requestID, "agent-1", "agent-secret", "gpt-5")
	status := checkStatus(t, ts, requestID)

	rec := exchangeCode(t, ts, "client-2", "other-secret", status.Code, verifier)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody errorBody
	decodeJSON(t, rec, &errBody)
	require.Equal(t, ErrInvalidGrant, errBody.Error)
}
