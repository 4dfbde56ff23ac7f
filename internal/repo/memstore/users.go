// Package memstore holds process-local implementations of the repo
// interfaces. Sessions expire through ttlcache; users and reports live in
// mutex-guarded maps.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

type userRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.User
	byEmail map[string]uuid.UUID
}

// NewUserRepo creates an empty in-memory UserRepo
func NewUserRepo() repo.UserRepo {
	return &userRepo{
		byID:    make(map[uuid.UUID]model.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := normalizeEmail(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return repo.ErrDuplicate
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = model.RoleAnalyst
	}
	now := time.Now().UTC()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now

	r.byID[user.ID] = *user
	r.byEmail[email] = user.ID
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return user, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *userRepo) UpdateProfile(_ context.Context, id uuid.UUID, email, firstName, lastName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	email = normalizeEmail(email)
	if owner, taken := r.byEmail[email]; taken && owner != id {
		return repo.ErrDuplicate
	}
	delete(r.byEmail, user.Email)
	user.Email = email
	user.FirstName = firstName
	user.LastName = lastName
	user.UpdatedAt = time.Now().UTC()
	r.byID[id] = user
	r.byEmail[email] = id
	return nil
}

func (r *userRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return r.mutate(id, func(u *model.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = time.Now().UTC()
	})
}

func (r *userRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(u *model.User) {
		u.LastLogin = &at
	})
}

func (r *userRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return r.mutate(id, func(u *model.User) {
		u.IsActive = active
		u.UpdatedAt = time.Now().UTC()
	})
}

func (r *userRepo) mutate(id uuid.UUID, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&user)
	r.byID[id] = user
	return nil
}
