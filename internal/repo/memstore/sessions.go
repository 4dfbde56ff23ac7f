package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

// SessionRepo keeps sessions in a ttlcache so that wall-clock expiry evicts
// them even when the purger never runs.
type SessionRepo struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[uuid.UUID, model.Session]
}

var _ repo.SessionRepo = (*SessionRepo)(nil)

// NewSessionRepo creates the store and starts the cache's eviction loop.
// Call Close to stop it.
func NewSessionRepo() *SessionRepo {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[uuid.UUID, model.Session](),
	)
	go cache.Start()

	return &SessionRepo{cache: cache}
}

// Close stops the eviction goroutine
func (r *SessionRepo) Close() error {
	r.cache.Stop()
	return nil
}

func (r *SessionRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	// A non-positive ttl would otherwise fall back to the cache default.
	// Such rows are left to PurgeExpired.
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	r.cache.Set(s.ID, *s, ttl)
	return nil
}

func (r *SessionRepo) FindActiveByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]model.Session, error) {
	return r.collect(func(s model.Session) bool {
		return s.UserID == userID && s.ExpiresAt.After(now)
	}), nil
}

func (r *SessionRepo) FindByUser(_ context.Context, userID uuid.UUID) ([]model.Session, error) {
	return r.collect(func(s model.Session) bool {
		return s.UserID == userID
	}), nil
}

func (r *SessionRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cache.Has(id) {
		return repo.ErrNotFound
	}
	r.cache.Delete(id)
	return nil
}

func (r *SessionRepo) DeleteAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	return r.deleteWhere(func(s model.Session) bool { return s.UserID == userID }), nil
}

func (r *SessionRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.cache.DeleteExpired()
	return r.deleteWhere(func(s model.Session) bool { return !s.ExpiresAt.After(now) }), nil
}

// Len returns the number of stored sessions, expired or not
func (r *SessionRepo) Len() int {
	return r.cache.Len()
}

func (r *SessionRepo) collect(match func(model.Session) bool) []model.Session {
	var out []model.Session
	for _, item := range r.cache.Items() {
		if s := item.Value(); match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *SessionRepo) deleteWhere(match func(model.Session) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, item := range r.cache.Items() {
		if match(item.Value()) {
			r.cache.Delete(id)
			n++
		}
	}
	return n
}
