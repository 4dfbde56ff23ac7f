package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

type reportRepo struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]model.Report
	byCaseID map[string]uuid.UUID
}

// NewReportRepo creates an empty in-memory ReportRepo
func NewReportRepo() repo.ReportRepo {
	return &reportRepo{
		byID:     make(map[uuid.UUID]model.Report),
		byCaseID: make(map[string]uuid.UUID),
	}
}

func (r *reportRepo) Create(_ context.Context, report *model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byCaseID[report.CaseID]; taken {
		return repo.ErrDuplicate
	}
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now

	r.byID[report.ID] = cloneReport(*report)
	r.byCaseID[report.CaseID] = report.ID
	return nil
}

func (r *reportRepo) LatestCaseID(_ context.Context, prefix string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest string
	for caseID := range r.byCaseID {
		if !strings.HasPrefix(caseID, prefix) {
			continue
		}
		if len(caseID) > len(latest) || (len(caseID) == len(latest) && caseID > latest) {
			latest = caseID
		}
	}
	return latest, nil
}

func (r *reportRepo) GetByID(_ context.Context, id uuid.UUID) (model.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.byID[id]
	if !ok {
		return model.Report{}, repo.ErrNotFound
	}
	out := cloneReport(report)
	out.FillCounts()
	return out, nil
}

func (r *reportRepo) ListByUser(_ context.Context, userID uuid.UUID, status model.ReportStatus) ([]model.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Report
	for _, report := range r.byID {
		if report.UserID != userID {
			continue
		}
		if status != "" && report.Status != status {
			continue
		}
		c := cloneReport(report)
		c.FillCounts()
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CaseID > out[j].CaseID
	})
	return out, nil
}

func (r *reportRepo) Update(_ context.Context, report *model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[report.ID]
	if !ok {
		return repo.ErrNotFound
	}
	report.UserID = existing.UserID
	report.CaseID = existing.CaseID
	report.CreatedAt = existing.CreatedAt
	report.UpdatedAt = time.Now().UTC()
	r.byID[report.ID] = cloneReport(*report)
	return nil
}

func (r *reportRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, ok := r.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byCaseID, report.CaseID)
	return nil
}

func (r *reportRepo) CountByStatus(_ context.Context, userID uuid.UUID) (model.ReportStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats model.ReportStats
	for _, report := range r.byID {
		if report.UserID != userID {
			continue
		}
		stats.Total++
		switch report.Status {
		case model.StatusDraft:
			stats.Draft++
		case model.StatusCompleted:
			stats.Completed++
		}
	}
	return stats, nil
}

// cloneReport copies the slices so callers never share backing arrays with the store
func cloneReport(report model.Report) model.Report {
	report.Images = append([]model.ReportImage{}, report.Images...)
	report.ChatHistory = append([]model.ChatMessage{}, report.ChatHistory...)
	report.EvidenceTags = append([]string{}, report.EvidenceTags...)
	return report
}
