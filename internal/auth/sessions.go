package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrExpiryInPast    = errors.New("session expiry must be in the future")
)

// Sessions stores refresh token grants. Only the salted hash of a token is
// persisted, so lookups scan a user's sessions with bcrypt compares.
type Sessions struct {
	repo   repo.SessionRepo
	hasher *Hasher
	now    func() time.Time
}

// NewSessions creates a session store over a session repository
func NewSessions(sessions repo.SessionRepo, hasher *Hasher) *Sessions {
	return &Sessions{repo: sessions, hasher: hasher, now: time.Now}
}

// Create hashes the refresh token and persists a new session. Empty device
// info and unparseable addresses are replaced with the unknown sentinels.
func (s *Sessions) Create(ctx context.Context, userID uuid.UUID, refreshToken, deviceInfo, ipAddress string, expiresAt time.Time) (model.Session, error) {
	if !expiresAt.After(s.now()) {
		return model.Session{}, ErrExpiryInPast
	}

	hash, err := s.hasher.HashToken(refreshToken)
	if err != nil {
		return model.Session{}, err
	}

	session := model.Session{
		UserID:           userID,
		RefreshTokenHash: hash,
		DeviceInfo:       normalizeDevice(deviceInfo),
		IPAddress:        normalizeIP(ipAddress),
		ExpiresAt:        expiresAt,
	}
	if err := s.repo.Create(ctx, &session); err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// FindActiveByUser returns the user's sessions that have not expired yet
func (s *Sessions) FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	sessions, err := s.repo.FindActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("find active sessions: %w", err)
	}
	return sessions, nil
}

// FindByUser returns every stored session of the user, live or not
func (s *Sessions) FindByUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	sessions, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	return sessions, nil
}

// MatchToken returns the first session whose hash matches token, or nil
func (s *Sessions) MatchToken(sessions []model.Session, token string) (*model.Session, error) {
	for i := range sessions {
		ok, err := s.hasher.CompareToken(sessions[i].RefreshTokenHash, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// MatchAll returns every session whose hash matches token
func (s *Sessions) MatchAll(sessions []model.Session, token string) ([]model.Session, error) {
	var matched []model.Session
	for _, session := range sessions {
		ok, err := s.hasher.CompareToken(session.RefreshTokenHash, token)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, session)
		}
	}
	return matched, nil
}

// DeleteByID removes one session
func (s *Sessions) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session of the user and reports how many
func (s *Sessions) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	return n, nil
}

// PurgeExpired removes every dead session and reports how many
func (s *Sessions) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return n, nil
}

func normalizeDevice(deviceInfo string) string {
	deviceInfo = strings.TrimSpace(deviceInfo)
	if deviceInfo == "" {
		return model.UnknownDevice
	}
	const maxDeviceInfo = 255
	if len(deviceInfo) > maxDeviceInfo {
		deviceInfo = deviceInfo[:maxDeviceInfo]
	}
	return deviceInfo
}

func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return model.UnknownIP
}
