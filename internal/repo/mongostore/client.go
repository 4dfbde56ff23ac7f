// Package mongostore implements the repo interfaces on MongoDB. Session
// expiry is backed by a TTL index on expires_at.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	UsersCollection    = "users"
	SessionsCollection = "sessions"
	ReportsCollection  = "reports"
)

// Connect dials MongoDB, pings the primary and returns the client with the
// named database. Callers own Disconnect.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	log.Info().Str("database", dbName).Msg("mongodb client initialized")
	return client, client.Database(dbName), nil
}

// Stores bundles the three repositories over one database
type Stores struct {
	Users    *UserRepo
	Sessions *SessionRepo
	Reports  *ReportRepo
}

// NewStores creates every repository and ensures its indexes
func NewStores(ctx context.Context, db *mongo.Database) (*Stores, error) {
	users, err := NewUserRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	sessions, err := NewSessionRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	reports, err := NewReportRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	return &Stores{Users: users, Sessions: sessions, Reports: reports}, nil
}
