package api

import (
	"net/http"

	"github.com/b0czek/linuxcnc-node-sub000/internal/auth"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{auth: service}
}

// Login handles POST /api/v1/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeJSON[auth.LoginRequest](w, r)
	if !ok {
		return
	}
	if !validateStruct(w, r, input) {
		return
	}

	resp, err := h.auth.Login(input.Username, input.Password)
	if err != nil {
		sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
		return
	}

	sendJSON(w, http.StatusOK, resp)
}
