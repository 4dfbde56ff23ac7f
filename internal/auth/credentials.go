package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrUserNotFound   = errors.New("user not found")
)

// Credentials owns user records and their password hashes
type Credentials struct {
	users  repo.UserRepo
	hasher *Hasher
}

// NewCredentials creates a credential store over a user repository
func NewCredentials(users repo.UserRepo, hasher *Hasher) *Credentials {
	return &Credentials{users: users, hasher: hasher}
}

// Create registers a new active analyst. The raw password is hashed before
// it reaches the repository.
func (c *Credentials) Create(ctx context.Context, email, rawPassword, firstName, lastName string) (model.User, error) {
	hash, err := c.hasher.HashPassword(rawPassword)
	if err != nil {
		return model.User{}, err
	}

	user := model.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         model.RoleAnalyst,
		IsActive:     true,
	}
	if err := c.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.User{}, ErrDuplicateEmail
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// FindByEmail looks a user up by email, case-insensitively
func (c *Credentials) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return c.find(c.users.GetByEmail(ctx, email))
}

// FindByID looks a user up by id
func (c *Credentials) FindByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return c.find(c.users.GetByID(ctx, id))
}

func (c *Credentials) find(user model.User, err error) (model.User, error) {
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// VerifyPassword compares candidate against the user's stored hash
func (c *Credentials) VerifyPassword(user model.User, candidate string) bool {
	return c.hasher.ComparePassword(user.PasswordHash, candidate)
}

// RejectUnknown spends the same work as VerifyPassword for a lookup that
// found no user. It always returns false.
func (c *Credentials) RejectUnknown(candidate string) bool {
	return c.hasher.CompareAbsent(candidate)
}

// SetPassword re-hashes and stores a new password. Existing sessions stay valid.
func (c *Credentials) SetPassword(ctx context.Context, user *model.User, newRaw string) error {
	hash, err := c.hasher.HashPassword(newRaw)
	if err != nil {
		return err
	}
	if err := c.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return c.writeErr("update password", err)
	}
	user.PasswordHash = hash
	return nil
}

// UpdateProfile changes names and email; a taken email is ErrDuplicateEmail
func (c *Credentials) UpdateProfile(ctx context.Context, user *model.User, email, firstName, lastName string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	if err := c.users.UpdateProfile(ctx, user.ID, email, firstName, lastName); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateEmail
		}
		return c.writeErr("update profile", err)
	}
	user.Email = email
	user.FirstName = firstName
	user.LastName = lastName
	return nil
}

// RecordLogin stamps last_login
func (c *Credentials) RecordLogin(ctx context.Context, user *model.User, at time.Time) error {
	if err := c.users.UpdateLastLogin(ctx, user.ID, at); err != nil {
		return c.writeErr("record login", err)
	}
	user.LastLogin = &at
	return nil
}

// Deactivate soft-deletes the account; the record is kept
func (c *Credentials) Deactivate(ctx context.Context, user *model.User) error {
	if err := c.users.SetActive(ctx, user.ID, false); err != nil {
		return c.writeErr("deactivate user", err)
	}
	user.IsActive = false
	return nil
}

func (c *Credentials) writeErr(op string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
