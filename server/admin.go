package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/auth-agent/Auth-Agent/cryptoutil"
	"github.com/auth-agent/Auth-Agent/storage"
	"github.com/auth-agent/Auth-Agent/validation"
)

// AdminServer exposes the registration API (§4.7) for agents and clients.
// It is deliberately bound to its own listener (web.adminHttp, or
// --admin-http-addr on the serve command) rather than
// the public router returned by NewServer, so operators can keep it off
// the public network entirely.
type AdminServer struct {
	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdminServer builds the admin *mux.Router. st and logger must be the
// same Storage and Logger passed to NewServer's Config.
func NewAdminServer(st storage.Storage, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AdminServer{storage: st, logger: logger, now: time.Now}

	r := mux.NewRouter().SkipClean(true)
	r.HandleFunc("/agents", a.handleCreateAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents", a.handleListAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id}", a.handleGetAgent).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id}", a.handleDeleteAgent).Methods(http.MethodDelete)

	r.HandleFunc("/clients", a.handleCreateClient).Methods(http.MethodPost)
	r.HandleFunc("/clients", a.handleListClients).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id}", a.handleGetClient).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id}", a.handleUpdateClient).Methods(http.MethodPatch)
	r.HandleFunc("/clients/{id}", a.handleDeleteClient).Methods(http.MethodDelete)

	return r
}

type createAgentRequest struct {
	AgentID   string `json:"agent_id"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

type agentResponse struct {
	AgentID   string `json:"agent_id"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
	CreatedAt string `json:"created_at"`

	// AgentSecret is populated only in the response to create_agent: the
	// plaintext is never recoverable after this call returns, only its
	// bcrypt hash is persisted.
	AgentSecret string `json:"agent_secret,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

const secretIssuedOnceWarning = "this secret is shown only once and cannot be recovered; store it now"

func agentToResponse(a storage.Agent) agentResponse {
	return agentResponse{
		AgentID:   a.AgentID,
		UserEmail: a.UserEmail,
		UserName:  a.UserName,
		CreatedAt: a.CreatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// handleCreateAgent implements create_agent (§4.7): agent_id defaults to
// "agent_"+random16 when omitted, agent_secret is always server-generated
// (random32, base64url), and the plaintext secret is returned exactly once
// alongside a non-recoverable warning; only its bcrypt hash is stored.
func (a *AdminServer) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "malformed JSON body")
		return
	}
	if body.AgentID == "" {
		body.AgentID = cryptoutil.RandomID("agent_", 16)
	}
	if !validation.IsValidIdentifier(body.AgentID) {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "agent_id is invalid or too short")
		return
	}
	if !validation.IsValidEmail(body.UserEmail) {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "user_email is required and must be valid")
		return
	}

	secret := cryptoutil.RandomURLSafeSecret(32)
	hash, err := cryptoutil.HashSecret(secret)
	if err != nil {
		a.logger.Error("failed to hash agent secret", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	agent := storage.Agent{
		AgentID:    body.AgentID,
		SecretHash: hash,
		UserEmail:  body.UserEmail,
		UserName:   body.UserName,
		CreatedAt:  a.now(),
	}
	if err := a.storage.CreateAgent(r.Context(), agent); err != nil {
		if err == storage.ErrAlreadyExists {
			writeJSONError(w, http.StatusConflict, ErrInvalidRequest, "agent_id already exists")
			return
		}
		a.logger.Error("failed to create agent", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	resp := agentToResponse(agent)
	resp.AgentSecret = secret
	resp.Warning = secretIssuedOnceWarning
	writeJSON(w, http.StatusCreated, resp)
}

func (a *AdminServer) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.storage.ListAgents(r.Context())
	if err != nil {
		a.logger.Error("failed to list agents", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	out := make([]agentResponse, 0, len(agents))
	for _, ag := range agents {
		out = append(out, agentToResponse(ag))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *AdminServer) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	agent, err := a.storage.GetAgent(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSONError(w, http.StatusNotFound, ErrNotFound, "unknown agent_id")
			return
		}
		a.logger.Error("failed to load agent", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, agentToResponse(agent))
}

func (a *AdminServer) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.storage.DeleteAgent(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			writeJSONError(w, http.StatusNotFound, ErrNotFound, "unknown agent_id")
			return
		}
		a.logger.Error("failed to delete agent", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createClientRequest struct {
	ClientID            string   `json:"client_id"`
	Name                string   `json:"name"`
	AllowedRedirectURIs []string `json:"allowed_redirect_uris"`
	AllowedGrantTypes   []string `json:"allowed_grant_types"`
}

type clientResponse struct {
	ClientID            string   `json:"client_id"`
	Name                string   `json:"name"`
	AllowedRedirectURIs []string `json:"allowed_redirect_uris"`
	AllowedGrantTypes   []string `json:"allowed_grant_types"`
	CreatedAt           string   `json:"created_at"`

	// ClientSecret is populated only in the response to create_client, for
	// the same one-time-disclosure reason as agentResponse.AgentSecret.
	ClientSecret string `json:"client_secret,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

func clientToResponse(c storage.Client) clientResponse {
	return clientResponse{
		ClientID:            c.ClientID,
		Name:                c.Name,
		AllowedRedirectURIs: c.AllowedRedirectURIs,
		AllowedGrantTypes:   c.AllowedGrantTypes,
		CreatedAt:           c.CreatedAt.Format(timeLayout),
	}
}

// handleCreateClient implements create_client (§4.7): client_id defaults to
// "client_"+random16 when omitted, client_secret is always server-generated
// (random32, base64url) and returned exactly once alongside a
// non-recoverable warning; only its bcrypt hash is stored.
func (a *AdminServer) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var body createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "malformed JSON body")
		return
	}
	if body.ClientID == "" {
		body.ClientID = cryptoutil.RandomID("client_", 16)
	}
	if !validation.IsValidIdentifier(body.ClientID) {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "client_id is invalid or too short")
		return
	}
	for _, uri := range body.AllowedRedirectURIs {
		if !validation.IsValidURL(uri) {
			writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "allowed_redirect_uris contains an invalid URL")
			return
		}
	}
	if len(body.AllowedGrantTypes) == 0 {
		body.AllowedGrantTypes = []string{grantTypeAuthorizationCode, grantTypeRefreshToken}
	}

	secret := cryptoutil.RandomURLSafeSecret(32)
	hash, err := cryptoutil.HashSecret(secret)
	if err != nil {
		a.logger.Error("failed to hash client secret", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	client := storage.Client{
		ClientID:            body.ClientID,
		SecretHash:          hash,
		Name:                body.Name,
		AllowedRedirectURIs: body.AllowedRedirectURIs,
		AllowedGrantTypes:   body.AllowedGrantTypes,
		CreatedAt:           a.now(),
	}
	if err := a.storage.CreateClient(r.Context(), client); err != nil {
		if err == storage.ErrAlreadyExists {
			writeJSONError(w, http.StatusConflict, ErrInvalidRequest, "client_id already exists")
			return
		}
		a.logger.Error("failed to create client", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	resp := clientToResponse(client)
	resp.ClientSecret = secret
	resp.Warning = secretIssuedOnceWarning
	writeJSON(w, http.StatusCreated, resp)
}

func (a *AdminServer) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := a.storage.ListClients(r.Context())
	if err != nil {
		a.logger.Error("failed to list clients", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	out := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, clientToResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *AdminServer) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	client, err := a.storage.GetClient(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSONError(w, http.StatusNotFound, ErrNotFound, "unknown client_id")
			return
		}
		a.logger.Error("failed to load client", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, clientToResponse(client))
}

type updateClientRequest struct {
	Name                *string  `json:"name"`
	AllowedRedirectURIs []string `json:"allowed_redirect_uris"`
	AllowedGrantTypes   []string `json:"allowed_grant_types"`
}

// handleUpdateClient implements update_client (§4.7) as a partial update:
// only fields present in the request body are changed, applied through
// UpdateClient so a concurrent registration change can't be lost.
func (a *AdminServer) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body updateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "malformed JSON body")
		return
	}
	for _, uri := range body.AllowedRedirectURIs {
		if !validation.IsValidURL(uri) {
			writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "allowed_redirect_uris contains an invalid URL")
			return
		}
	}

	var updated storage.Client
	err := a.storage.UpdateClient(r.Context(), id, func(c storage.Client) (storage.Client, error) {
		if body.Name != nil {
			c.Name = *body.Name
		}
		if body.AllowedRedirectURIs != nil {
			c.AllowedRedirectURIs = body.AllowedRedirectURIs
		}
		if body.AllowedGrantTypes != nil {
			c.AllowedGrantTypes = body.AllowedGrantTypes
		}
		updated = c
		return c, nil
	})
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSONError(w, http.StatusNotFound, ErrNotFound, "unknown client_id")
			return
		}
		a.logger.Error("failed to update client", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	writeJSON(w, http.StatusOK, clientToResponse(updated))
}

func (a *AdminServer) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.storage.DeleteClient(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			writeJSONError(w, http.StatusNotFound, ErrNotFound, "unknown client_id")
			return
		}
		a.logger.Error("failed to delete client", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
