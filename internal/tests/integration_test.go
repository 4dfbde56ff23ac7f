package tests

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicnotes/server/internal/account"
	"github.com/forensicnotes/server/internal/auth"
	"github.com/forensicnotes/server/internal/config"
	"github.com/forensicnotes/server/internal/db"
	httphandler "github.com/forensicnotes/server/internal/http"
	"github.com/forensicnotes/server/internal/http/handlers"
	"github.com/forensicnotes/server/internal/middleware"
	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
	"github.com/forensicnotes/server/internal/report"
)

func TestMain(m *testing.M) {
	// Set env if unset. Do NOT set DATABASE_URL; integration tests skip if missing.
	if os.Getenv("JWT_SECRET") == "" {
		os.Setenv("JWT_SECRET", "test-jwt-secret-at-least-32-characters-long")
	}
	if os.Getenv("JWT_REFRESH_SECRET") == "" {
		os.Setenv("JWT_REFRESH_SECRET", "test-refresh-secret-at-least-32-characters")
	}
	if os.Getenv("STORE_BACKEND") == "" {
		os.Setenv("STORE_BACKEND", config.BackendPostgres)
	}
	if os.Getenv("BCRYPT_COST") == "" {
		os.Setenv("BCRYPT_COST", "4")
		os.Setenv("SESSION_HASH_COST", "4")
	}

	code := m.Run()
	os.Exit(code)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	database, err := db.Open(context.Background(), os.Getenv("DATABASE_URL"))
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database), "migrations must run successfully")
	require.NoError(t, TruncateTables(context.Background(), database))
	return database
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
}

func newTestServer(t *testing.T, rateLimitMax int) *testServer {
	t.Helper()
	database := openTestDB(t)

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	logger := zerolog.Nop()
	hasher := auth.NewHasher(cfg.BcryptCost, cfg.SessionHashCost)
	tokens := auth.NewJWTService(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	creds := auth.NewCredentials(repo.NewUserRepo(database), hasher)
	sessions := auth.NewSessions(repo.NewSessionRepo(database), hasher)

	limiter := middleware.NewRateLimiter(time.Minute, rateLimitMax)
	t.Cleanup(limiter.Stop)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Env:      cfg.Env,
		Logger:   logger,
		Tokens:   tokens,
		Users:    creds,
		Limiter:  limiter,
		Auth:     handlers.NewAuthHandler(auth.NewAuthService(tokens, creds, sessions, nil, logger)),
		Accounts: handlers.NewUserHandler(account.NewService(creds, sessions, nil, logger)),
		Reports:  handlers.NewReportHandler(report.NewService(repo.NewReportRepo(database), nil, logger)),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateTables(context.Background(), s.DB), "truncate tables")
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func newUser(email string) *model.User {
	return &model.User{
		Email:        email,
		PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderpla",
		FirstName:    "Dana",
		LastName:     "Scully",
		Role:         model.RoleAnalyst,
		IsActive:     true,
	}
}

func TestUserRepo_Postgres(t *testing.T) {
	database := openTestDB(t)
	users := repo.NewUserRepo(database)
	ctx := context.Background()

	u := newUser("Dana@FBI.gov")
	require.NoError(t, users.Create(ctx, u))
	assert.Equal(t, "dana@fbi.gov", u.Email)
	assert.False(t, u.CreatedAt.IsZero())

	assert.ErrorIs(t, users.Create(ctx, newUser("DANA@fbi.gov")), repo.ErrDuplicate)

	got, err := users.GetByEmail(ctx, "DANA@FBI.GOV")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Nil(t, got.LastLogin)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, users.UpdateLastLogin(ctx, u.ID, at))
	require.NoError(t, users.SetActive(ctx, u.ID, false))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.True(t, at.Equal(*got.LastLogin))
	assert.False(t, got.IsActive)

	other := newUser("fox@fbi.gov")
	require.NoError(t, users.Create(ctx, other))
	assert.ErrorIs(t, users.UpdateProfile(ctx, other.ID, "dana@fbi.gov", "Fox", "Mulder"), repo.ErrDuplicate)

	_, err = users.GetByEmail(ctx, "nobody@fbi.gov")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSessionRepo_Postgres(t *testing.T) {
	database := openTestDB(t)
	users := repo.NewUserRepo(database)
	sessions := repo.NewSessionRepo(database)
	ctx := context.Background()

	u := newUser("dana@fbi.gov")
	require.NoError(t, users.Create(ctx, u))

	now := time.Now().UTC()
	live := &model.Session{UserID: u.ID, RefreshTokenHash: "h1", DeviceInfo: "phone", IPAddress: "10.0.0.1", ExpiresAt: now.Add(time.Hour)}
	dead := &model.Session{UserID: u.ID, RefreshTokenHash: "h2", DeviceInfo: "laptop", IPAddress: "10.0.0.2", ExpiresAt: now.Add(-time.Minute)}
	require.NoError(t, sessions.Create(ctx, live))
	require.NoError(t, sessions.Create(ctx, dead))

	active, err := sessions.FindActiveByUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, live.ID, active[0].ID)

	all, err := sessions.FindByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := sessions.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, sessions.DeleteByID(ctx, dead.ID), repo.ErrNotFound)

	n, err = sessions.DeleteAllForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestReportRepo_Postgres(t *testing.T) {
	database := openTestDB(t)
	users := repo.NewUserRepo(database)
	reports := repo.NewReportRepo(database)
	ctx := context.Background()

	u := newUser("dana@fbi.gov")
	require.NoError(t, users.Create(ctx, u))

	latest, err := reports.LatestCaseID(ctx, "CASE-2026-")
	require.NoError(t, err)
	assert.Empty(t, latest)

	size := int64(512)
	img := "file:///a.jpg"
	for _, caseID := range []string{"CASE-2026-9999", "CASE-2026-10000", "CASE-2025-0500"} {
		r := &model.Report{
			UserID:       u.ID,
			CaseID:       caseID,
			Images:       []model.ReportImage{{URI: img, Size: &size, UploadedAt: time.Now().UTC()}},
			ChatHistory:  []model.ChatMessage{{ID: "m1", Role: model.ChatRoleUser, Content: "hi", ImageURI: &img, Timestamp: time.Now().UTC()}},
			EvidenceTags: []string{"blood"},
			Status:       model.StatusDraft,
		}
		require.NoError(t, reports.Create(ctx, r))
	}

	latest, err = reports.LatestCaseID(ctx, "CASE-2026-")
	require.NoError(t, err)
	assert.Equal(t, "CASE-2026-10000", latest)

	dup := &model.Report{UserID: u.ID, CaseID: "CASE-2026-9999", Status: model.StatusDraft}
	assert.ErrorIs(t, reports.Create(ctx, dup), repo.ErrDuplicate)

	listed, err := reports.ListByUser(ctx, u.ID, "")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	got := listed[0]
	require.Len(t, got.Images, 1)
	assert.Equal(t, size, *got.Images[0].Size)
	require.Len(t, got.ChatHistory, 1)
	assert.Equal(t, img, *got.ChatHistory[0].ImageURI)
	assert.Equal(t, []string{"blood"}, got.EvidenceTags)
	assert.Equal(t, 1, got.ImageCount)

	got.Status = model.StatusCompleted
	got.EvidenceTags = nil
	require.NoError(t, reports.Update(ctx, &got))

	stats, err := reports.CountByStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStats{Total: 3, Draft: 2, Completed: 1}, stats)

	reloaded, err := reports.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.EvidenceTags)

	require.NoError(t, reports.Delete(ctx, got.ID))
	_, err = reports.GetByID(ctx, got.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
