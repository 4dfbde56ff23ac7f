package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

type sessionDoc struct {
	ID               string    `bson:"_id"`
	UserID           string    `bson:"user_id"`
	RefreshTokenHash string    `bson:"refresh_token_hash"`
	DeviceInfo       string    `bson:"device_info"`
	IPAddress        string    `bson:"ip_address"`
	ExpiresAt        time.Time `bson:"expires_at"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func (d sessionDoc) toModel() (model.Session, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session user id %q: %w", d.UserID, err)
	}
	return model.Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: d.RefreshTokenHash,
		DeviceInfo:       d.DeviceInfo,
		IPAddress:        d.IPAddress,
		ExpiresAt:        d.ExpiresAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

// SessionRepo implements repo.SessionRepo on MongoDB
type SessionRepo struct {
	sessions *mongo.Collection
}

var _ repo.SessionRepo = (*SessionRepo)(nil)

// NewSessionRepo creates the repository. The expires_at TTL index lets the
// server drop dead sessions on its own.
func NewSessionRepo(ctx context.Context, db *mongo.Database) (*SessionRepo, error) {
	r := &SessionRepo{sessions: db.Collection(SessionsCollection)}

	_, err := r.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "expires_at", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session indexes: %w", err)
	}
	log.Debug().Msg("session indexes ensured")
	return r, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := r.sessions.InsertOne(ctx, sessionDoc{
		ID:               s.ID.String(),
		UserID:           s.UserID.String(),
		RefreshTokenHash: s.RefreshTokenHash,
		DeviceInfo:       s.DeviceInfo,
		IPAddress:        s.IPAddress,
		ExpiresAt:        s.ExpiresAt.UTC(),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.Session, error) {
	return r.find(ctx, bson.M{
		"user_id":    userID.String(),
		"expires_at": bson.M{"$gt": now.UTC()},
	})
}

func (r *SessionRepo) FindByUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	return r.find(ctx, bson.M{"user_id": userID.String()})
}

func (r *SessionRepo) find(ctx context.Context, filter bson.M) ([]model.Session, error) {
	cursor, err := r.sessions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []sessionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	sessions := make([]model.Session, 0, len(docs))
	for _, d := range docs {
		s, err := d.toModel()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *SessionRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result, err := r.sessions.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if result.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.sessions.DeleteMany(ctx, bson.M{"user_id": userID.String()})
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *SessionRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.sessions.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return result.DeletedCount, nil
}
