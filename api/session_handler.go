package api

import (
	"encoding/json"
	"net/http"

	"github.com/malwarebo/reserva/security"
)

type SessionHandler struct {
	rotation *security.RotationManager
}

func CreateSessionHandler(rotation *security.RotationManager) *SessionHandler {
	return &SessionHandler{
		rotation: rotation,
	}
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	creds, err := h.rotation.Create(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, creds)
}

type refreshRequest struct {
	SessionID    string `json:"session_id"`
	RefreshToken string `json:"refresh_token"`
}

func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.rotation.Rotate(r.Context(), req.SessionID, req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type logoutAllRequest struct {
	UserID          string `json:"user_id"`
	ExceptSessionID string `json:"except_session_id"`
}

func (h *SessionHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	var req logoutAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	revoked, err := h.rotation.RevokeAll(r.Context(), req.UserID, req.ExceptSessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"revoked": revoked})
}
