// Package account serves the signed-in user's own profile, password and
// sessions.
package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forensicnotes/server/internal/apperr"
	"github.com/forensicnotes/server/internal/auth"
	"github.com/forensicnotes/server/internal/events"
	"github.com/forensicnotes/server/internal/model"
)

// ProfileUpdate carries the optional fields of a profile change
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
}

// Service implements account self-management
type Service struct {
	credentials *auth.Credentials
	sessions    *auth.Sessions
	publisher   events.Publisher
	log         zerolog.Logger
}

// NewService creates a new account service
func NewService(credentials *auth.Credentials, sessions *auth.Sessions, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		credentials: credentials,
		sessions:    sessions,
		publisher:   publisher,
		log:         logger.With().Str("component", "account").Logger(),
	}
}

// Profile returns the public profile of a user
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (model.PublicProfile, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return model.PublicProfile{}, err
	}
	return user.Profile(), nil
}

// UpdateProfile applies the non-nil fields of upd
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (model.PublicProfile, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return model.PublicProfile{}, err
	}

	email, first, last := user.Email, user.FirstName, user.LastName
	if upd.Email != nil {
		email = *upd.Email
	}
	if upd.FirstName != nil {
		first = *upd.FirstName
	}
	if upd.LastName != nil {
		last = *upd.LastName
	}

	if err := s.credentials.UpdateProfile(ctx, &user, email, first, last); err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			return model.PublicProfile{}, apperr.Conflict("email is already in use")
		case errors.Is(err, auth.ErrUserNotFound):
			return model.PublicProfile{}, apperr.NotFound("user not found")
		}
		return model.PublicProfile{}, apperr.Internal("update profile failed", err)
	}
	return user.Profile(), nil
}

// ChangePassword replaces the password after checking the current one.
// Sessions are left intact; clients call logout-all to revoke them.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if current == next {
		return apperr.Validation("validation failed", apperr.FieldError{
			Field:   "newPassword",
			Message: "New password must be different from current password",
		})
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !s.credentials.VerifyPassword(user, current) {
		return apperr.Auth("current password is incorrect")
	}
	if err := s.credentials.SetPassword(ctx, &user, next); err != nil {
		return apperr.Internal("change password failed", err)
	}

	s.log.Info().Str("user_id", userID.String()).Msg("password changed")
	s.publish(ctx, events.New(events.PasswordChanged, userID, nil))
	return nil
}

// Deactivate soft-deletes the account and revokes every session
func (s *Service) Deactivate(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.credentials.Deactivate(ctx, &user); err != nil {
		return 0, apperr.Internal("deactivate failed", err)
	}
	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("deactivate failed", err)
	}

	s.log.Info().Str("user_id", userID.String()).Int64("sessions", n).Msg("account deactivated")
	s.publish(ctx, events.New(events.UserDeactivated, userID, nil))
	return n, nil
}

// Sessions lists the user's live sessions without their hashes
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]model.SessionView, error) {
	sessions, err := s.sessions.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list sessions failed", err)
	}
	views := make([]model.SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, sessions[i].View())
	}
	return views, nil
}

func (s *Service) load(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := s.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return model.User{}, apperr.NotFound("user not found")
		}
		return model.User{}, apperr.Internal("load user failed", err)
	}
	return user, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("event", string(e.Type)).Msg("failed to publish audit event")
	}
}
