package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forensicnotes/server/internal/apperr"
	"github.com/forensicnotes/server/internal/events"
	"github.com/forensicnotes/server/internal/model"
)

const (
	msgInvalidCredentials = "invalid email or password"
	msgAccountDisabled    = "account is deactivated"
)

// ClientInfo describes the caller of a session-creating request
type ClientInfo struct {
	DeviceInfo string
	IPAddress  string
}

// AuthResult is returned by signup and login
type AuthResult struct {
	User   model.PublicProfile `json:"user"`
	Tokens TokenPair           `json:"tokens"`
}

// RefreshResult is returned by refresh
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   string `json:"expiresIn"`
}

// AuthService orchestrates signup, login, refresh and logout
type AuthService struct {
	tokens      *JWTService
	credentials *Credentials
	sessions    *Sessions
	publisher   events.Publisher
	log         zerolog.Logger
	now         func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	tokens *JWTService,
	credentials *Credentials,
	sessions *Sessions,
	publisher events.Publisher,
	logger zerolog.Logger,
) *AuthService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &AuthService{
		tokens:      tokens,
		credentials: credentials,
		sessions:    sessions,
		publisher:   publisher,
		log:         logger.With().Str("component", "auth").Logger(),
		now:         time.Now,
	}
}

// Signup creates an account and its first session
func (s *AuthService) Signup(ctx context.Context, email, password, firstName, lastName string, client ClientInfo) (*AuthResult, error) {
	user, err := s.credentials.Create(ctx, email, password, firstName, lastName)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, apperr.Conflict("user with this email already exists")
		}
		return nil, apperr.Internal("signup failed", err)
	}

	tokens, err := s.openSession(ctx, user.ID, client)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID.String()).Str("email", maskEmail(user.Email)).Msg("user signed up")
	s.publish(ctx, events.New(events.UserSignedUp, user.ID, nil).WithIP(client.IPAddress))

	return &AuthResult{User: user.Profile(), Tokens: tokens}, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password fail identically; the active flag is checked only after the
// password matched.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*AuthResult, error) {
	user, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.credentials.RejectUnknown(password)
			return nil, apperr.Auth(msgInvalidCredentials)
		}
		return nil, apperr.Internal("login failed", err)
	}

	if !s.credentials.VerifyPassword(user, password) {
		s.log.Info().Str("email", maskEmail(user.Email)).Msg("login rejected: wrong password")
		return nil, apperr.Auth(msgInvalidCredentials)
	}
	if !user.IsActive {
		return nil, apperr.Forbidden(msgAccountDisabled)
	}

	if err := s.credentials.RecordLogin(ctx, &user, s.now().UTC()); err != nil {
		return nil, apperr.Internal("login failed", err)
	}

	tokens, err := s.openSession(ctx, user.ID, client)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID.String()).Str("device", normalizeDevice(client.DeviceInfo)).Msg("user logged in")
	s.publish(ctx, events.New(events.UserLoggedIn, user.ID, map[string]string{
		"device": normalizeDevice(client.DeviceInfo),
	}).WithIP(client.IPAddress))

	return &AuthResult{User: user.Profile(), Tokens: tokens}, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token and its session are left as they are.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return nil, apperr.AuthWrap("invalid token", err)
	}

	active, err := s.sessions.FindActiveByUser(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Internal("refresh failed", err)
	}
	if len(active) == 0 {
		return nil, apperr.Auth("session expired, login again")
	}

	session, err := s.sessions.MatchToken(active, refreshToken)
	if err != nil {
		return nil, apperr.Internal("refresh failed", err)
	}
	if session == nil {
		return nil, apperr.Auth("invalid refresh token")
	}

	if session.IsExpired(s.now()) {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			s.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to delete expired session")
		}
		return nil, apperr.Auth("session expired")
	}

	user, err := s.credentials.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Auth("user not found")
		}
		return nil, apperr.Internal("refresh failed", err)
	}
	if !user.IsActive {
		return nil, apperr.Forbidden(msgAccountDisabled)
	}

	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, apperr.Internal("refresh failed", err)
	}
	return &RefreshResult{AccessToken: access, ExpiresIn: formatTTL(s.tokens.AccessTTL())}, nil
}

// Logout deletes every session of the token's owner that matches the token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return apperr.AuthWrap("invalid token", err)
	}

	sessions, err := s.sessions.FindByUser(ctx, claims.UserID)
	if err != nil {
		return apperr.Internal("logout failed", err)
	}
	matched, err := s.sessions.MatchAll(sessions, refreshToken)
	if err != nil {
		return apperr.Internal("logout failed", err)
	}
	if len(matched) == 0 {
		return apperr.NotFound("session not found")
	}

	deleted := 0
	for _, session := range matched {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil {
			// A concurrent logout may have removed it already
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return apperr.Internal("logout failed", err)
		}
		deleted++
	}
	if deleted == 0 {
		return apperr.NotFound("session not found")
	}

	s.log.Info().Str("user_id", claims.UserID.String()).Int("sessions", deleted).Msg("user logged out")
	s.publish(ctx, events.New(events.UserLoggedOut, claims.UserID, nil))
	return nil
}

// LogoutAll deletes every session of the user. The caller must already be
// authenticated as that user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("logout failed", err)
	}

	s.log.Info().Str("user_id", userID.String()).Int64("sessions", n).Msg("user logged out everywhere")
	s.publish(ctx, events.New(events.UserLoggedOutAll, userID, nil))
	return n, nil
}

func (s *AuthService) openSession(ctx context.Context, userID uuid.UUID, client ClientInfo) (TokenPair, error) {
	pair, err := s.tokens.IssuePair(userID)
	if err != nil {
		return TokenPair{}, apperr.Internal("failed to issue tokens", err)
	}

	expiresAt := s.now().Add(s.tokens.RefreshTTL())
	if _, err := s.sessions.Create(ctx, userID, pair.RefreshToken, client.DeviceInfo, client.IPAddress, expiresAt); err != nil {
		return TokenPair{}, apperr.Internal("failed to create session", err)
	}
	return pair, nil
}

func (s *AuthService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("event", string(e.Type)).Msg("failed to publish audit event")
	}
}

// maskEmail returns the email with the local part mostly hidden (e.g. j***@example.com)
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
