package server

import (
	"context"
	"net/http"
)

// handleRevoke implements RFC 7009 token revocation (§4.6, POST /revoke).
// Once client authentication succeeds, revocation is idempotent: an
// unknown, already-revoked, or mistyped token still returns 200 with an
// empty body, per RFC 7009 §2.2.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "failed to parse request body")
		return
	}

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

	token := r.PostFormValue("token")
	hint := r.PostFormValue("token_type_hint")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "token is required")
		return
	}

	if hint == "refresh_token" {
		if s.revokeAsRefreshToken(ctx, client.ClientID, token) {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.revokeAsAccessToken(ctx, client.ClientID, token)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !s.revokeAsAccessToken(ctx, client.ClientID, token) {
		s.revokeAsRefreshToken(ctx, client.ClientID, token)
	}
	w.WriteHeader(http.StatusOK)
}

// revokeAsAccessToken revokes the Token row behind an access token and
// cascades to its paired refresh token, since the pair must die together
// (§4.6).
func (s *Server) revokeAsAccessToken(ctx context.Context, clientID, accessToken string) bool {
	tok, err := s.storage.FindTokenByAccess(ctx, accessToken)
	if err != nil || tok.ClientID != clientID {
		return false
	}

	if err := s.storage.RevokeToken(ctx, tok.TokenID); err != nil {
		s.logger.Error("failed to revoke token", "err", err)
		return false
	}
	if tok.RefreshToken != "" {
		if err := s.storage.RevokeRefresh(ctx, tok.RefreshToken); err != nil {
			s.logger.Error("failed to cascade-revoke refresh token", "err", err)
		}
	}
	return true
}

// revokeAsRefreshToken revokes a refresh token and cascades to the access
// token it was paired with.
func (s *Server) revokeAsRefreshToken(ctx context.Context, clientID, refreshToken string) bool {
	entry, err := s.storage.GetRefreshEntry(ctx, refreshToken)
	if err != nil || entry.ClientID != clientID {
		return false
	}

	if err := s.storage.RevokeRefresh(ctx, refreshToken); err != nil {
		s.logger.Error("failed to revoke refresh token", "err", err)
		return false
	}
	if err := s.storage.RevokeToken(ctx, entry.TokenID); err != nil {
		s.logger.Error("failed to cascade-revoke access token", "err", err)
	}
	return true
}
