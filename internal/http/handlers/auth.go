package handlers

import (
	"net/http"
	"strings"

	"github.com/forensicnotes/server/internal/auth"
	"github.com/forensicnotes/server/internal/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// signupRequest is the request body for POST /auth/signup
type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenRequest is the request body for POST /auth/refresh and /auth/logout
type tokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutAllResponse struct {
	SessionsDeleted int64 `json:"sessionsDeleted"`
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		DeviceInfo: r.UserAgent(),
		IPAddress:  middleware.ClientIP(r),
	}
}

// HandleSignup handles POST /auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	var fe fieldErrors
	fe.email("email", req.Email)
	fe.password("password", "Password", req.Password)
	fe.name("firstName", "First name", req.FirstName, "First name is required")
	fe.name("lastName", "Last name", req.LastName, "Last name is required")
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.authService.Signup(r.Context(), req.Email, req.Password, req.FirstName, req.LastName, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "User registered successfully", result)
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	req.Email = normalizeEmail(req.Email)

	var fe fieldErrors
	fe.email("email", req.Email)
	if req.Password == "" {
		fe.add("password", "Password is required")
	}
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Login successful", result)
}

func (h *AuthHandler) decodeToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return "", false
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		var fe fieldErrors
		fe.add("refreshToken", "Refresh token is required")
		writeError(w, r, fe.err())
		return "", false
	}
	return token, true
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeToken(w, r)
	if !ok {
		return
	}
	result, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Token refreshed successfully", result)
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeToken(w, r)
	if !ok {
		return
	}
	if err := h.authService.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Logout successful", nil)
}

// HandleLogoutAll handles POST /auth/logout-all (protected)
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	n, err := h.authService.LogoutAll(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Logged out from all devices successfully", logoutAllResponse{SessionsDeleted: n})
}
