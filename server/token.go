package server

import (
	"context"
	"net/http"
	"time"

	"github.com/auth-agent/Auth-Agent/cryptoutil"
	"github.com/auth-agent/Auth-Agent/storage"
)

const (
	grantTypeAuthorizationCode = "authorization_code"
	grantTypeRefreshToken      = "refresh_token"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// handleToken implements the token endpoint (§4.5, POST /token):
// authorization-code and refresh-token grants.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "failed to parse request body")
		return
	}

	grantType := r.PostFormValue("grant_type")
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if clientID == "" {
		if id, secret, ok := r.BasicAuth(); ok {
			clientID, clientSecret = id, secret
		}
	}

	ctx := r.Context()
	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, ErrInvalidClient, "invalid client credentials")
		return
	}

	switch grantType {
	case grantTypeAuthorizationCode:
		s.handleAuthorizationCodeGrant(w, r, client)
	case grantTypeRefreshToken:
		s.handleRefreshTokenGrant(w, r, client)
	default:
		writeJSONError(w, http.StatusBadRequest, ErrUnsupportedGrantType, "unsupported grant_type")
	}
}

// authenticateClient is the shared client-credential check used by the
// token, introspection, and revocation endpoints (§4.5 step 1, §4.6).
func (s *Server) authenticateClient(ctx context.Context, clientID, clientSecret string) (storage.Client, error) {
	client, err := s.storage.GetClient(ctx, clientID)
	if err != nil {
		return storage.Client{}, err
	}
	if !cryptoutil.VerifySecret(clientSecret, client.SecretHash) {
		return storage.Client{}, storage.ErrNotFound
	}
	return client, nil
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, client storage.Client) {
	ctx := r.Context()
	code := r.PostFormValue("code")
	codeVerifier := r.PostFormValue("code_verifier")
	if code == "" {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "code is required")
		return
	}

	requestID, err := s.storage.ResolveCode(ctx, code)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "invalid or already-used code")
		return
	}

	req, err := s.storage.GetAuthRequest(ctx, requestID)
	if err != nil {
		// The code resolved but its request is gone: treat as invalid_grant
		// rather than server_error, since this is reachable via replay of an
		// already-consumed code whose request row was deleted.
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "invalid or already-used code")
		return
	}

	if req.Code != code || req.ClientID != client.ClientID {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "code does not match request")
		return
	}

	if !cryptoutil.VerifyPKCE(codeVerifier, req.CodeChallenge, req.CodeChallengeMethod) {
		// Delete the code and request on a failed PKCE check too, so a
		// second attempt (even with the right verifier) also fails with
		// invalid_grant, per §8 scenario 3.
		s.deleteCodeAndRequest(ctx, code, requestID)
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "invalid code_verifier")
		return
	}

	now := s.now()
	if now.After(req.ExpiresAt) {
		s.deleteCodeAndRequest(ctx, code, requestID)
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "authorization request has expired")
		return
	}

	if req.AgentID == "" || req.Model == "" {
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "authorization request missing agent binding")
		return
	}

	resp, err := s.issueTokenPair(ctx, client, req.AgentID, req.Model, req.Scope, "")
	if err != nil {
		s.logger.Error("failed to issue token", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	// Single-use code: delete the code and request last, after the new
	// token has been durably persisted, so a crash between consuming the
	// code and creating the token never orphans the code's effect.
	s.deleteCodeAndRequest(ctx, code, requestID)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteCodeAndRequest(ctx context.Context, code, requestID string) {
	if err := s.storage.ConsumeCode(ctx, code); err != nil {
		s.logger.Error("failed to consume code", "err", err)
	}
	if err := s.storage.DeleteAuthRequest(ctx, requestID); err != nil {
		s.logger.Error("failed to delete auth request", "err", err)
	}
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request, client storage.Client) {
	ctx := r.Context()
	refreshToken := r.PostFormValue("refresh_token")
	if refreshToken == "" {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "refresh_token is required")
		return
	}

	entry, err := s.storage.GetRefreshEntry(ctx, refreshToken)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "unknown refresh_token")
		return
	}
	if entry.Revoked || s.now().After(entry.ExpiresAt) {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "refresh_token is revoked or expired")
		return
	}
	if entry.ClientID != client.ClientID {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidGrant, "refresh_token was not issued to this client")
		return
	}

	oldToken, err := s.storage.GetToken(ctx, entry.TokenID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	// Refresh tokens are not rotated: the same opaque refresh_token is
	// echoed back and its expiry is preserved; only a fresh access token is
	// minted.
	resp, err := s.issueTokenPair(ctx, client, entry.AgentID, oldToken.Model, oldToken.Scope, refreshToken)
	if err != nil {
		s.logger.Error("failed to issue refreshed token", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// issueTokenPair mints a new JWT access token and persists a Token record.
// If reuseRefreshToken is non-empty, the existing refresh entry's
// expiry is preserved and echoed back rather than minting a new one.
func (s *Server) issueTokenPair(ctx context.Context, client storage.Client, agentID, model, scope, reuseRefreshToken string) (*tokenResponse, error) {
	now := s.now()
	tokenID := storage.NewID()
	accessExpiry := now.Add(s.accessTokenTTL)

	claims := cryptoutil.Claims{
		Subject:  agentID,
		ClientID: client.ClientID,
		Model:    model,
		Scope:    scope,
		IssuedAt: now.Unix(),
		Expiry:   accessExpiry.Unix(),
		Issuer:   s.issuerURL.String(),
	}
	accessToken, err := cryptoutil.SignJWT(claims, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	refreshToken := reuseRefreshToken
	refreshExpiry := accessExpiry
	if refreshToken == "" {
		refreshToken = storage.NewSecureToken("rt_", 32)
		refreshExpiry = now.Add(s.refreshTokenTTL)

		if err := s.storage.CreateRefreshEntry(ctx, storage.RefreshEntry{
			RefreshToken: refreshToken,
			TokenID:      tokenID,
			AgentID:      agentID,
			ClientID:     client.ClientID,
			ExpiresAt:    refreshExpiry,
		}); err != nil {
			return nil, err
		}
	} else {
		existing, err := s.storage.GetRefreshEntry(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		refreshExpiry = existing.ExpiresAt
		supersededTokenID := existing.TokenID

		// Repoint the refresh entry at the newly minted token so a later
		// revoke-by-refresh-token cascades onto the access token actually in
		// circulation, then revoke the token it superseded: the old access
		// token must stop working the moment a new one is issued in its
		// place.
		if err := s.storage.UpdateRefreshEntry(ctx, refreshToken, func(r storage.RefreshEntry) (storage.RefreshEntry, error) {
			r.TokenID = tokenID
			return r, nil
		}); err != nil {
			return nil, err
		}
		if supersededTokenID != tokenID {
			if err := s.storage.RevokeToken(ctx, supersededTokenID); err != nil {
				s.logger.Error("failed to revoke superseded token", "err", err)
			}
		}
	}

	if err := s.storage.CreateToken(ctx, storage.Token{
		TokenID:          tokenID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AgentID:          agentID,
		ClientID:         client.ClientID,
		Model:            model,
		Scope:            scope,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
		CreatedAt:        now,
	}); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessExpiry.Sub(now) / time.Second),
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}
