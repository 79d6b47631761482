package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/auth-agent/Auth-Agent/cryptoutil"
	"github.com/auth-agent/Auth-Agent/storage"
)

type authenticateAgentRequest struct {
	RequestID   string `json:"request_id"`
	AgentID     string `json:"agent_id"`
	AgentSecret string `json:"agent_secret"`
	Model       string `json:"model"`
}

// handleAuthenticateAgent implements authenticate_agent (§4.4, POST
// /api/agent/authenticate): the back-channel credential submission by the
// controlling agent.
func (s *Server) handleAuthenticateAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, ErrInvalidRequest, "method not allowed")
		return
	}

	var body authenticateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "malformed JSON body")
		return
	}
	if body.RequestID == "" || body.AgentID == "" || body.AgentSecret == "" {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "request_id, agent_id and agent_secret are required")
		return
	}

	ctx := r.Context()
	now := s.now()

	req, err := s.storage.GetAuthRequest(ctx, body.RequestID)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSONError(w, http.StatusNotFound, ErrNotFound, "unknown request_id")
			return
		}
		s.logger.Error("failed to load auth request", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	if req.Status != storage.StatusPending {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "request is not pending (status: "+string(req.Status)+")")
		return
	}
	if now.After(req.ExpiresAt) {
		s.expireRequest(ctx, body.RequestID)
		writeJSONError(w, http.StatusBadRequest, ErrRequestExpired, "authorization request has expired")
		return
	}

	agent, err := s.storage.GetAgent(ctx, body.AgentID)
	if err != nil && err != storage.ErrNotFound {
		s.logger.Error("failed to load agent", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	// A failed credential attempt is a deliberate one-shot policy: it
	// terminates the request rather than allowing retries, to avoid an
	// online guessing oracle against agent_secret.
	if err == storage.ErrNotFound || !cryptoutil.VerifySecret(body.AgentSecret, agent.SecretHash) {
		s.failRequest(ctx, body.RequestID, "Invalid agent credentials")
		writeJSONError(w, http.StatusUnauthorized, ErrInvalidClient, "invalid agent credentials")
		return
	}

	code := storage.NewSecureToken("code_", 32)

	err = s.storage.UpdateAuthRequest(ctx, body.RequestID, func(a storage.AuthRequest) (storage.AuthRequest, error) {
		a.AgentID = agent.AgentID
		a.Model = body.Model
		a.Code = code
		a.Status = storage.StatusAuthenticated
		return a, nil
	})
	if err != nil {
		s.logger.Error("failed to mark request authenticated", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	if err := s.storage.BindCode(ctx, code, body.RequestID); err != nil {
		s.logger.Error("failed to bind code", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) failRequest(ctx context.Context, requestID, reason string) {
	err := s.storage.UpdateAuthRequest(ctx, requestID, func(a storage.AuthRequest) (storage.AuthRequest, error) {
		a.Status = storage.StatusError
		a.Error = reason
		return a, nil
	})
	if err != nil {
		s.logger.Error("failed to mark request errored", "err", err)
	}
}

func (s *Server) expireRequest(ctx context.Context, requestID string) {
	err := s.storage.UpdateAuthRequest(ctx, requestID, func(a storage.AuthRequest) (storage.AuthRequest, error) {
		if a.Status == storage.StatusPending {
			a.Status = storage.StatusExpired
		}
		return a, nil
	})
	if err != nil {
		s.logger.Error("failed to mark request expired", "err", err)
	}
}

type statusResponse struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
	State       string `json:"state,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// handleCheckStatus implements poll_status (§4.4, GET /api/check-status).
// The authenticated->completed transition happens inside a single
// UpdateAuthRequest call so that a code is ever returned to at most one
// poll (§5's linearizability requirement).
func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		writeJSONError(w, http.StatusBadRequest, ErrInvalidRequest, "request_id is required")
		return
	}

	ctx := r.Context()
	now := s.now()

	req, err := s.storage.GetAuthRequest(ctx, requestID)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSONError(w, http.StatusNotFound, ErrNotFound, "unknown request_id")
			return
		}
		s.logger.Error("failed to load auth request", "err", err)
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
		return
	}

	switch req.Status {
	case storage.StatusPending:
		if now.After(req.ExpiresAt) {
			s.expireRequest(ctx, requestID)
			writeJSON(w, http.StatusOK, statusResponse{Status: "error", Error: "request_expired"})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "pending"})
	case storage.StatusError:
		writeJSON(w, http.StatusOK, statusResponse{Status: "error", Error: req.Error})
	case storage.StatusExpired:
		writeJSON(w, http.StatusOK, statusResponse{Status: "error", Error: "request_expired"})
	case storage.StatusAuthenticated:
		var resp statusResponse
		err := s.storage.UpdateAuthRequest(ctx, requestID, func(a storage.AuthRequest) (storage.AuthRequest, error) {
			if a.Status != storage.StatusAuthenticated {
				// Lost the race (or a repeat poll): report whatever the
				// request settled into without leaking the code again.
				resp = statusResponse{Status: string(a.Status)}
				return a, nil
			}
			resp = statusResponse{
				Status:      "authenticated",
				Code:        a.Code,
				State:       a.State,
				RedirectURI: a.RedirectURI,
			}
			a.Status = storage.StatusCompleted
			return a, nil
		})
		if err != nil {
			s.logger.Error("failed to complete auth request", "err", err)
			writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case storage.StatusCompleted:
		// Subsequent polls after the first authenticated observation must
		// not return the code again, to prevent code leakage on browser
		// back-navigation or reload.
		writeJSON(w, http.StatusOK, statusResponse{Status: "completed"})
	default:
		writeJSONError(w, http.StatusInternalServerError, ErrServerError, "")
	}
}
