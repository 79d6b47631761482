package server

import (
	"net/http"
	"path"
)

type discoveryDocument struct {
	Issuer                                      string   `json:"issuer"`
	AuthorizationEndpoint                       string   `json:"authorization_endpoint"`
	TokenEndpoint                                string   `json:"token_endpoint"`
	IntrospectionEndpoint                        string   `json:"introspection_endpoint"`
	RevocationEndpoint                           string   `json:"revocation_endpoint"`
	JWKSURI                                      string   `json:"jwks_uri"`
	ResponseTypesSupported                       []string `json:"response_types_supported"`
	GrantTypesSupported                          []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported                []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported            []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                              []string `json:"scopes_supported"`
	TokenEndpointAuthSigningAlgValuesSupported   []string `json:"token_endpoint_auth_signing_alg_values_supported"`
}

// handleDiscovery serves RFC 8414 authorization server metadata (§6, GET
// /.well-known/oauth-authorization-server) so clients can locate the
// other endpoints without hardcoding paths.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	issuer := s.issuerURL.String()
	doc := discoveryDocument{
		Issuer:                            issuer,
		AuthorizationEndpoint:             s.endpoint("authorize"),
		TokenEndpoint:                     s.endpoint("token"),
		IntrospectionEndpoint:             s.endpoint("introspect"),
		RevocationEndpoint:                s.endpoint("revoke"),
		JWKSURI:                           s.endpoint(".well-known/jwks.json"),
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{grantTypeAuthorizationCode, grantTypeRefreshToken},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		// agents authenticate over the back channel, not via an ID token;
		// these scopes are carried for clients that assume an OIDC-shaped
		// discovery document.
		ScopesSupported: []string{"openid", "profile", "email"},
		// HS256 is the only algorithm this server ever signs with.
		TokenEndpointAuthSigningAlgValuesSupported: []string{"HS256"},
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) endpoint(p string) string {
	u := s.issuerURL
	u.Path = path.Join(u.Path, p)
	return u.String()
}

// handleJWKS serves an empty key set (§6, GET /.well-known/jwks.json).
// Access tokens are signed with HS256, a symmetric algorithm whose key
// must never be published; this endpoint exists only so discovery
// clients that expect jwks_uri to resolve don't fail outright.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": []interface{}{}})
}
