package report

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/forensicnotes/server/internal/apperr"
	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
	"github.com/forensicnotes/server/internal/repo/memstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(memstore.NewReportRepo(), nil, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestCreate_allocatesSequentialCaseIDs(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := s.Create(ctx, userID, CreateInput{ReportContent: "Blood spatter on the north wall"})
	require.NoError(t, err)
	assert.Equal(t, "CASE-2026-0001", first.CaseID)
	assert.Equal(t, model.StatusDraft, first.Status)
	assert.Equal(t, "Blood spatter on the north wall", first.Summary)

	second, err := s.Create(ctx, uuid.New(), CreateInput{})
	require.NoError(t, err)
	assert.Equal(t, "CASE-2026-0002", second.CaseID, "sequence is global, not per user")
}

func TestCreate_concurrentAllocationsAreUnique(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	const n = 4
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.Create(ctx, uuid.New(), CreateInput{})
			if err == nil {
				ids <- r.CaseID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate case id %s", id)
		seen[id] = true
	}
	assert.NotEmpty(t, seen)
}

func TestCreate_normalizesAndStamps(t *testing.T) {
	s := newTestService(t)
	r, err := s.Create(context.Background(), uuid.New(), CreateInput{
		Images:       []model.ReportImage{{URI: "file:///a.jpg"}},
		ChatHistory:  []model.ChatMessage{{Role: model.ChatRoleUser, Content: "what is this?"}},
		EvidenceTags: []string{"  Blood ", "", "FINGERPRINT"},
		Status:       model.StatusCompleted,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"blood", "fingerprint"}, r.EvidenceTags)
	assert.Equal(t, 1, r.ImageCount)
	assert.Equal(t, 1, r.MessageCount)
	assert.False(t, r.Images[0].UploadedAt.IsZero())
	assert.NotEmpty(t, r.ChatHistory[0].ID)
	assert.Equal(t, model.StatusCompleted, r.Status)
}

func TestGet_ownership(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	r, err := s.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)

	_, err = s.Get(ctx, uuid.New(), r.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = s.Get(ctx, owner, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	got, err := s.Get(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.CaseID, got.CaseID)
}

func TestUpdate_appendsChatAndResummarizes(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	r, err := s.Create(ctx, owner, CreateInput{
		ChatHistory: []model.ChatMessage{{ID: "m1", Role: model.ChatRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	long := strings.Repeat("é", 250)
	completed := model.StatusCompleted
	updated, err := s.Update(ctx, owner, r.ID, UpdateInput{
		ChatHistory:   []model.ChatMessage{{ID: "m2", Role: model.ChatRoleAssistant, Content: "hello"}},
		ReportContent: &long,
		Status:        &completed,
	})
	require.NoError(t, err)

	require.Len(t, updated.ChatHistory, 2)
	assert.Equal(t, "m1", updated.ChatHistory[0].ID)
	assert.Equal(t, "m2", updated.ChatHistory[1].ID)
	assert.Equal(t, 2, updated.MessageCount)
	assert.Equal(t, strings.Repeat("é", 200)+"...", updated.Summary)
	assert.Equal(t, model.StatusCompleted, updated.Status)

	_, err = s.Update(ctx, uuid.New(), r.ID, UpdateInput{Status: &completed})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestUpdate_emptyContentKeepsSummary(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	r, err := s.Create(ctx, owner, CreateInput{ReportContent: "Latent print on the door handle"})
	require.NoError(t, err)
	require.Equal(t, "Latent print on the door handle", r.Summary)

	empty := ""
	updated, err := s.Update(ctx, owner, r.ID, UpdateInput{ReportContent: &empty})
	require.NoError(t, err)
	assert.Equal(t, "", updated.ReportContent)
	assert.Equal(t, "Latent print on the door handle", updated.Summary)

	got, err := s.Get(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Latent print on the door handle", got.Summary)
}

func TestList_omitsChatButKeepsCounts(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := s.Create(ctx, owner, CreateInput{
		ChatHistory: []model.ChatMessage{{Role: model.ChatRoleUser, Content: "a"}, {Role: model.ChatRoleAssistant, Content: "b"}},
	})
	require.NoError(t, err)
	_, err = s.Create(ctx, owner, CreateInput{Status: model.StatusCompleted})
	require.NoError(t, err)

	all, err := s.List(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, r := range all {
		assert.Nil(t, r.ChatHistory)
	}

	drafts, err := s.List(ctx, owner, model.StatusDraft)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 2, drafts[0].MessageCount)

	none, err := s.List(ctx, uuid.New(), "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDeleteAndStats(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	a, err := s.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)
	_, err = s.Create(ctx, owner, CreateInput{Status: model.StatusCompleted})
	require.NoError(t, err)

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(s.Delete(ctx, uuid.New(), a.ID)))
	require.NoError(t, s.Delete(ctx, owner, a.ID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(s.Delete(ctx, owner, a.ID)))

	stats, err := s.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStats{Total: 1, Draft: 0, Completed: 1}, stats)
}

// collidingRepo reports every case id as taken
type collidingRepo struct {
	mock.Mock
	repo.ReportRepo
}

func (c *collidingRepo) LatestCaseID(ctx context.Context, prefix string) (string, error) {
	args := c.Called(ctx, prefix)
	return args.String(0), args.Error(1)
}

func (c *collidingRepo) Create(ctx context.Context, r *model.Report) error {
	return c.Called(ctx, r).Error(0)
}

func TestCreate_givesUpAfterRepeatedCollisions(t *testing.T) {
	store := new(collidingRepo)
	store.On("LatestCaseID", mock.Anything, "CASE-2026-").Return("CASE-2026-0041", nil)
	store.On("Create", mock.Anything, mock.Anything).Return(repo.ErrDuplicate)

	s := NewService(store, nil, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	_, err := s.Create(context.Background(), uuid.New(), CreateInput{})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	store.AssertNumberOfCalls(t, "Create", maxCaseIDAttempts)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "", Summarize(""))
	exact := strings.Repeat("a", 200)
	assert.Equal(t, exact, Summarize(exact))
	assert.Equal(t, exact+"...", Summarize(exact+"b"))
}
