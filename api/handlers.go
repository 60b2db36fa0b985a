package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/burnt-labs/abstraxion-backend/backend"
	"github.com/burnt-labs/abstraxion-backend/storage"
)

type connectRequest struct {
	UserID             string               `json:"user_id"`
	Permissions        *storage.Permissions `json:"permissions,omitempty"`
	GrantedRedirectURL string               `json:"granted_redirect_url,omitempty"`
}

func (a *API) handleConnectInit(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := a.backend.ConnectInit(r.Context(), req.UserID, req.Permissions, req.GrantedRedirectURL)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(EventConnectInit, r, req.UserID)
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	var input backend.CallbackInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := a.backend.HandleCallback(r.Context(), input)
	if err != nil {
		// Only missing required fields reach here; everything else is a
		// tagged result.
		mapError(w, err)
		return
	}
	a.audit.log(EventCallback, r)
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	result := a.backend.CheckStatus(r.Context(), userID)
	a.audit.logUser(EventStatus, r, userID)
	writeJSON(w, http.StatusOK, result)
}

type userIDRequest struct {
	UserID string `json:"user_id"`
}

func (a *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := a.backend.Disconnect(r.Context(), req.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(EventDisconnect, r, req.UserID)
	writeJSON(w, http.StatusOK, result)
}

type refreshResponse struct {
	SessionKeyAddress string `json:"session_key_address,omitempty"`
	Rotated           bool   `json:"rotated"`
	Found             bool   `json:"found"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := a.backend.RefreshSessionKey(r.Context(), req.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(EventRefresh, r, req.UserID)
	if result == nil {
		writeJSON(w, http.StatusOK, refreshResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		SessionKeyAddress: result.Keypair.Address(),
		Rotated:           result.Rotated,
		Found:             true,
	})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	events, err := a.backend.GetAuditLogs(r.Context(), userID, limit)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (a *API) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.backend.GetCacheStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
