package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

// setupStores connects to TEST_MONGO_URI and returns stores on a throwaway database
func setupStores(t *testing.T) *Stores {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping mongo tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, db, err := Connect(ctx, uri, "forensic_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	stores, err := NewStores(ctx, db)
	require.NoError(t, err)
	return stores
}

func TestMongoUsers_caseInsensitiveUnique(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	u := &model.User{Email: "Lab@Example.com", PasswordHash: "h", FirstName: "L", LastName: "B", IsActive: true}
	require.NoError(t, stores.Users.Create(ctx, u))

	err := stores.Users.Create(ctx, &model.User{Email: "lab@example.COM", PasswordHash: "h"})
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	got, err := stores.Users.GetByEmail(ctx, "LAB@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, stores.Users.SetActive(ctx, u.ID, false))
	got, err = stores.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestMongoSessions_activeAndPurge(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	live := &model.Session{UserID: userID, RefreshTokenHash: "a", ExpiresAt: now.Add(time.Hour)}
	soon := &model.Session{UserID: userID, RefreshTokenHash: "b", ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, stores.Sessions.Create(ctx, live))
	require.NoError(t, stores.Sessions.Create(ctx, soon))

	active, err := stores.Sessions.FindActiveByUser(ctx, userID, now.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, live.ID, active[0].ID)

	n, err := stores.Sessions.PurgeExpired(ctx, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = stores.Sessions.DeleteAllForUser(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMongoReports_latestCaseID(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()
	userID := uuid.New()

	for _, id := range []string{"CASE-2026-9999", "CASE-2026-10000", "CASE-2025-0001"} {
		require.NoError(t, stores.Reports.Create(ctx, &model.Report{UserID: userID, CaseID: id, Status: model.StatusDraft}))
	}
	err := stores.Reports.Create(ctx, &model.Report{UserID: userID, CaseID: "CASE-2026-9999"})
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	latest, err := stores.Reports.LatestCaseID(ctx, "CASE-2026-")
	require.NoError(t, err)
	assert.Equal(t, "CASE-2026-10000", latest)

	stats, err := stores.Reports.CountByStatus(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Draft)
}
