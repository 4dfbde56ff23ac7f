package handlers

import (
	"net/http"
	"strings"

	"github.com/forensicnotes/server/internal/account"
	"github.com/forensicnotes/server/internal/middleware"
)

// UserHandler serves the authenticated user's own account
type UserHandler struct {
	accounts *account.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(accounts *account.Service) *UserHandler {
	return &UserHandler{accounts: accounts}
}

type updateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// HandleGetProfile handles GET /users/profile
func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	profile, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Profile retrieved successfully", profile)
}

// HandleUpdateProfile handles PUT /users/profile
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var fe fieldErrors
	if req.FirstName != nil {
		v := strings.TrimSpace(*req.FirstName)
		req.FirstName = &v
		fe.name("firstName", "First name", v, "First name cannot be empty")
	}
	if req.LastName != nil {
		v := strings.TrimSpace(*req.LastName)
		req.LastName = &v
		fe.name("lastName", "Last name", v, "Last name cannot be empty")
	}
	if req.Email != nil {
		v := normalizeEmail(*req.Email)
		req.Email = &v
		fe.email("email", v)
	}
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := h.accounts.UpdateProfile(r.Context(), userID, account.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Profile updated successfully", profile)
}

// HandleChangePassword handles PUT /users/password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var fe fieldErrors
	if req.CurrentPassword == "" {
		fe.add("currentPassword", "Current password is required")
	}
	fe.password("newPassword", "New password", req.NewPassword)
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Password changed successfully", nil)
}

// HandleDeactivate handles DELETE /users/account
func (h *UserHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if _, err := h.accounts.Deactivate(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Account deactivated successfully", nil)
}

// HandleSessions handles GET /users/sessions
func (h *UserHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	sessions, err := h.accounts.Sessions(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Sessions retrieved successfully", sessions)
}
