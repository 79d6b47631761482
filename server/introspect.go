package server

import (
	"context"
	"net/http"

	"github.com/auth-agent/Auth-Agent/cryptoutil"
)

type introspectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Model     string `json:"model,omitempty"`
}

var inactiveIntrospection = introspectionResponse{Active: false}

// handleIntrospect implements RFC 7662 token introspection (§4.6, POST
// /introspect). A malformed, unknown, revoked, or expired token is never
// an error: it is reported as {"active": false}, per RFC 7662 §2.2.
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
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
	if _, err := s.authenticateClient(ctx, clientID, clientSecret); err != nil {
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
		if resp, ok := s.introspectRefreshToken(ctx, token); ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeJSON(w, http.StatusOK, inactiveIntrospection)
		return
	}

	if resp, ok := s.introspectAccessToken(ctx, token); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if resp, ok := s.introspectRefreshToken(ctx, token); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, inactiveIntrospection)
}

// introspectAccessToken verifies the JWT's signature and issuer, then
// cross-checks it against the persisted Token row so a revoked access
// token reports inactive even though its signature still verifies.
func (s *Server) introspectAccessToken(ctx context.Context, accessToken string) (introspectionResponse, bool) {
	claims, err := cryptoutil.VerifyJWT(accessToken, s.jwtSecret, s.issuerURL.String())
	if err != nil {
		return introspectionResponse{}, false
	}

	tok, err := s.storage.FindTokenByAccess(ctx, accessToken)
	if err != nil {
		return introspectionResponse{}, false
	}
	if tok.Revoked || s.now().After(tok.AccessExpiresAt) {
		return introspectionResponse{}, false
	}

	return introspectionResponse{
		Active:    true,
		Scope:     claims.Scope,
		ClientID:  claims.ClientID,
		TokenType: "Bearer",
		Exp:       claims.Expiry,
		Iat:       claims.IssuedAt,
		Sub:       claims.Subject,
		Iss:       claims.Issuer,
		Model:     claims.Model,
	}, true
}

// introspectRefreshToken reports an opaque refresh token's metadata by
// joining through to the Token row the entry currently points at (the one
// minted by its most recent grant) for model and scope.
func (s *Server) introspectRefreshToken(ctx context.Context, refreshToken string) (introspectionResponse, bool) {
	entry, err := s.storage.GetRefreshEntry(ctx, refreshToken)
	if err != nil {
		return introspectionResponse{}, false
	}
	if entry.Revoked || s.now().After(entry.ExpiresAt) {
		return introspectionResponse{}, false
	}

	tok, err := s.storage.GetToken(ctx, entry.TokenID)
	if err != nil {
		return introspectionResponse{}, false
	}

	return introspectionResponse{
		Active:    true,
		Scope:     tok.Scope,
		ClientID:  entry.ClientID,
		TokenType: "refresh_token",
		Exp:       entry.ExpiresAt.Unix(),
		Sub:       entry.AgentID,
		Iss:       s.issuerURL.String(),
		Model:     tok.Model,
	}, true
}
