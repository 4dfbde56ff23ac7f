package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicnotes/server/internal/auth"
	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo/memstore"
)

const (
	testAccessSecret  = "access-secret-for-tests"
	testRefreshSecret = "refresh-secret-for-tests"
)

type gateFixture struct {
	tokens *auth.JWTService
	creds  *auth.Credentials
	user   model.User
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	creds := auth.NewCredentials(memstore.NewUserRepo(), auth.NewHasher(4, 4))
	user, err := creds.Create(context.Background(), "gate@example.com", "Secret123", "Gate", "Keeper")
	require.NoError(t, err)
	return &gateFixture{
		tokens: auth.NewJWTService(testAccessSecret, testRefreshSecret, 15*time.Minute, time.Hour),
		creds:  creds,
		user:   user,
	}
}

func (f *gateFixture) accessToken(t *testing.T) string {
	t.Helper()
	tok, err := f.tokens.IssueAccessToken(f.user.ID)
	require.NoError(t, err)
	return tok
}

// echoUser reports the user id the gate attached
func echoUser(w http.ResponseWriter, r *http.Request) {
	id, ok := GetUserID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_, _ = w.Write([]byte(id.String()))
}

func serveGate(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeGateError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, rec.Code, body.Error.StatusCode)
	return body
}

func TestAuthenticate_validToken(t *testing.T) {
	f := newGateFixture(t)
	h := Authenticate(f.tokens, f.creds)(http.HandlerFunc(echoUser))

	rec := serveGate(h, "Bearer "+f.accessToken(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.user.ID.String(), rec.Body.String())
}

func TestAuthenticate_rejections(t *testing.T) {
	f := newGateFixture(t)
	h := Authenticate(f.tokens, f.creds)(http.HandlerFunc(echoUser))

	refresh, err := f.tokens.IssueRefreshToken(f.user.ID)
	require.NoError(t, err)

	expiredIssuer := auth.NewJWTService(testAccessSecret, testRefreshSecret, -time.Minute, time.Hour)
	expired, err := expiredIssuer.IssueAccessToken(f.user.ID)
	require.NoError(t, err)

	cases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "access token is required"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "access token is required"},
		{"bare bearer", "Bearer", "access token is required"},
		{"blank bearer", "bearer    ", "access token is required"},
		{"unknown scheme alone", "Token", "invalid authorization header format"},
		{"garbage", "Bearer not-a-jwt", "invalid access token"},
		{"refresh token", "Bearer " + refresh, "invalid access token"},
		{"expired", "Bearer " + expired, "access token has expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveGate(h, tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.message, decodeGateError(t, rec).Error.Message)
		})
	}
}

func TestAuthenticate_unknownUser(t *testing.T) {
	f := newGateFixture(t)
	other := newGateFixture(t)
	h := Authenticate(f.tokens, f.creds)(http.HandlerFunc(echoUser))

	rec := serveGate(h, "Bearer "+other.accessToken(t))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user not found", decodeGateError(t, rec).Error.Message)
}

func TestAuthenticate_inactiveUser(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.creds.Deactivate(context.Background(), &f.user))
	h := Authenticate(f.tokens, f.creds)(http.HandlerFunc(echoUser))

	rec := serveGate(h, "Bearer "+f.accessToken(t))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account is deactivated", decodeGateError(t, rec).Error.Message)
}

func TestOptionalAuth(t *testing.T) {
	f := newGateFixture(t)
	h := OptionalAuth(f.tokens, f.creds)(http.HandlerFunc(echoUser))

	rec := serveGate(h, "Bearer "+f.accessToken(t))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.user.ID.String(), rec.Body.String())

	rec = serveGate(h, "Bearer junk")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serveGate(h, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireRole(t *testing.T) {
	f := newGateFixture(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	adminOnly := Authenticate(f.tokens, f.creds)(RequireRole(model.RoleAdmin)(ok))
	rec := serveGate(adminOnly, "Bearer "+f.accessToken(t))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	analysts := Authenticate(f.tokens, f.creds)(RequireRole(model.RoleAnalyst, model.RoleAdmin)(ok))
	rec = serveGate(analysts, "Bearer "+f.accessToken(t))
	assert.Equal(t, http.StatusOK, rec.Code)

	// without Authenticate in front there is no user
	rec = serveGate(RequireRole(model.RoleAnalyst)(ok), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUser_emptyContext(t *testing.T) {
	_, ok := GetUser(context.Background())
	assert.False(t, ok)
	_, ok = GetUserID(context.Background())
	assert.False(t, ok)
}
