package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/forensicnotes/server/internal/auth"
	"github.com/forensicnotes/server/internal/model"
)

type contextKey string

const (
	userKey   contextKey = "user"
	userIDKey contextKey = "user_id"
)

// TokenVerifier checks a bearer token of the expected type
type TokenVerifier interface {
	Verify(token string, expected auth.TokenType) (*auth.JWTClaims, error)
}

// UserLoader fetches the account behind a verified token
type UserLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

type gateError struct {
	status  int
	message string
}

// resolve runs every check of the gate and returns the authenticated user
func resolve(r *http.Request, tokens TokenVerifier, users UserLoader) (*model.User, *gateError) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, &gateError{http.StatusUnauthorized, "access token is required"}
	}
	// A bare "Bearer" scheme counts as a missing token
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return nil, &gateError{http.StatusUnauthorized, "invalid authorization header format"}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &gateError{http.StatusUnauthorized, "access token is required"}
	}

	claims, err := tokens.Verify(token, auth.TokenAccess)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, &gateError{http.StatusUnauthorized, "access token has expired"}
		}
		return nil, &gateError{http.StatusUnauthorized, "invalid access token"}
	}

	user, err := users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, &gateError{http.StatusUnauthorized, "user not found"}
		}
		hlog.FromRequest(r).Error().Err(err).Msg("auth gate: load user failed")
		return nil, &gateError{http.StatusInternalServerError, "something went wrong, please try again later"}
	}
	if !user.IsActive {
		return nil, &gateError{http.StatusForbidden, "account is deactivated"}
	}
	return &user, nil
}

func withUser(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, userIDKey, user.ID)
}

// Authenticate requires a valid access token for an active user and
// attaches that user to the request context
func Authenticate(tokens TokenVerifier, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, gerr := resolve(r, tokens, users)
			if gerr != nil {
				respondWithError(w, gerr.status, gerr.message)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// OptionalAuth attaches the user when the request carries a valid token and
// otherwise continues anonymously
func OptionalAuth(tokens TokenVerifier, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, gerr := resolve(r, tokens, users); gerr == nil {
				r = r.WithContext(withUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects authenticated users whose role is not listed. It must
// run after Authenticate.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	allowed := make(map[model.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !allowed[user.Role] {
				respondWithError(w, http.StatusForbidden, "you do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUser returns the user attached to the request context (set by Authenticate)
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// errorBody mirrors the failure envelope of the handlers package
type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	var body errorBody
	body.Error.Message = message
	body.Error.StatusCode = statusCode

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
