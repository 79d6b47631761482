package server

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/auth-agent/Auth-Agent/storage"
	"github.com/auth-agent/Auth-Agent/validation"
)

// landingPageTemplate embeds the request_id so the controlling agent and
// the browser-side polling script can both read it. The visual design is
// out of scope (§1); this is the minimal contract the polling script and
// the agent rely on.
var landingPageTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorizing</title></head>
<body>
<div id="auth-agent-request" data-request-id="{{.RequestID}}"></div>
<p>Waiting for the controlling agent to authenticate&hellip;</p>
</body>
</html>`))

var errorPageTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization error</title></head>
<body>
<h1>Authorization error</h1>
<p>{{.Message}}</p>
</body>
</html>`))

func (s *Server) renderErrorPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	errorPageTemplate.Execute(w, struct{ Message string }{message})
}

// handleAuthorize implements begin_authorization (§4.4, GET /authorize).
// Every validation failure renders an HTML error page rather than
// redirecting to the client: at this stage the redirect_uri has not yet
// been verified, so redirecting back would hand an attacker a way to
// leak errors (and, in other flows, codes) to an unverified endpoint.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.renderErrorPage(w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderErrorPage(w, http.StatusBadRequest, "Failed to parse request.")
		return
	}
	q := r.Form

	if rt := q.Get("response_type"); rt != "code" {
		s.renderErrorPage(w, http.StatusBadRequest, fmt.Sprintf("Unsupported response_type %q.", rt))
		return
	}

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")
	scope := q.Get("scope")

	if clientID == "" || redirectURI == "" || codeChallenge == "" || codeChallengeMethod == "" {
		s.renderErrorPage(w, http.StatusBadRequest, "Missing one or more required parameters.")
		return
	}

	client, err := s.storage.GetClient(r.Context(), clientID)
	if err != nil {
		if err == storage.ErrNotFound {
			s.renderErrorPage(w, http.StatusBadRequest, fmt.Sprintf("Unknown client_id %q.", clientID))
			return
		}
		s.logger.Error("failed to look up client", "err", err)
		s.renderErrorPage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	if !validation.RedirectURIAllowed(client, redirectURI) {
		s.renderErrorPage(w, http.StatusBadRequest, "Unregistered redirect_uri.")
		return
	}
	if !validation.IsS256(codeChallengeMethod) {
		s.renderErrorPage(w, http.StatusBadRequest, "Unsupported code_challenge_method; only S256 is accepted.")
		return
	}

	if scope == "" {
		scope = s.defaultScope
	}

	now := s.now()
	req := storage.AuthRequest{
		RequestID:           storage.NewID(),
		ClientID:            client.ClientID,
		RedirectURI:         redirectURI,
		State:               state,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		Scope:               scope,
		Status:              storage.StatusPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.authRequestTTL),
	}

	if err := s.storage.CreateAuthRequest(r.Context(), req); err != nil {
		s.logger.Error("failed to create auth request", "err", err)
		s.renderErrorPage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	landingPageTemplate.Execute(w, struct{ RequestID string }{req.RequestID})
}
