package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/forensicnotes/server/internal/model"
)

// ReportRepo defines the interface for report repository operations
type ReportRepo interface {
	Create(ctx context.Context, report *model.Report) error
	// LatestCaseID returns the highest case id starting with prefix, or "" when none exists
	LatestCaseID(ctx context.Context, prefix string) (string, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Report, error)
	// ListByUser returns a user's reports newest first; an empty status matches all
	ListByUser(ctx context.Context, userID uuid.UUID, status model.ReportStatus) ([]model.Report, error)
	Update(ctx context.Context, report *model.Report) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context, userID uuid.UUID) (model.ReportStats, error)
}

type reportRepo struct {
	db *sql.DB
}

// NewReportRepo creates a new ReportRepo instance
func NewReportRepo(db *sql.DB) ReportRepo {
	return &reportRepo{db: db}
}

const reportColumns = `id, user_id, case_id, images, chat_history, report_content, evidence_tags, summary, status, created_at, updated_at`

// Create inserts a report. A case id clash yields ErrDuplicate so the caller
// can allocate the next one.
func (r *reportRepo) Create(ctx context.Context, report *model.Report) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	images, chat, err := encodeReportDocs(report)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO reports (id, user_id, case_id, images, chat_history, report_content, evidence_tags, summary, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, report.ID, report.UserID, report.CaseID, images, chat, report.ReportContent,
		tagsArray(report.EvidenceTags), report.Summary, string(report.Status)).Scan(
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// LatestCaseID orders by length first so CASE-2026-10000 sorts after CASE-2026-9999
func (r *reportRepo) LatestCaseID(ctx context.Context, prefix string) (string, error) {
	var caseID string
	err := r.db.QueryRowContext(ctx, `
		SELECT case_id FROM reports
		WHERE starts_with(case_id, $1)
		ORDER BY length(case_id) DESC, case_id DESC
		LIMIT 1
	`, prefix).Scan(&caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("latest case id: %w", err)
	}
	return caseID, nil
}

// GetByID retrieves a report by ID
func (r *reportRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Report, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, ErrNotFound
		}
		return model.Report{}, err
	}
	return report, nil
}

func (r *reportRepo) ListByUser(ctx context.Context, userID uuid.UUID, status model.ReportStatus) ([]model.Report, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// Update rewrites the mutable fields of a report
func (r *reportRepo) Update(ctx context.Context, report *model.Report) error {
	images, chat, err := encodeReportDocs(report)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE reports
		SET images = $2, chat_history = $3, report_content = $4, evidence_tags = $5,
			summary = $6, status = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, report.ID, images, chat, report.ReportContent, tagsArray(report.EvidenceTags),
		report.Summary, string(report.Status)).Scan(&report.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update report: %w", err)
	}
	return nil
}

// Delete removes a report
func (r *reportRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return expectOneRow(result)
}

func (r *reportRepo) CountByStatus(ctx context.Context, userID uuid.UUID) (model.ReportStats, error) {
	var stats model.ReportStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'draft'),
			count(*) FILTER (WHERE status = 'completed')
		FROM reports WHERE user_id = $1
	`, userID).Scan(&stats.Total, &stats.Draft, &stats.Completed)
	if err != nil {
		return model.ReportStats{}, fmt.Errorf("count reports: %w", err)
	}
	return stats, nil
}

func encodeReportDocs(report *model.Report) ([]byte, []byte, error) {
	images := report.Images
	if images == nil {
		images = []model.ReportImage{}
	}
	chat := report.ChatHistory
	if chat == nil {
		chat = []model.ChatMessage{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, nil, fmt.Errorf("encode images: %w", err)
	}
	chatJSON, err := json.Marshal(chat)
	if err != nil {
		return nil, nil, fmt.Errorf("encode chat history: %w", err)
	}
	return imagesJSON, chatJSON, nil
}

// tagsArray keeps nil tag slices off the NOT NULL column
func tagsArray(tags []string) pq.StringArray {
	if tags == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(tags)
}

func scanReport(row rowScanner) (model.Report, error) {
	var report model.Report
	var images, chat []byte
	var status string
	var tags pq.StringArray
	err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.CaseID,
		&images,
		&chat,
		&report.ReportContent,
		&tags,
		&report.Summary,
		&status,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, err
		}
		return model.Report{}, fmt.Errorf("scan report: %w", err)
	}
	if err := json.Unmarshal(images, &report.Images); err != nil {
		return model.Report{}, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal(chat, &report.ChatHistory); err != nil {
		return model.Report{}, fmt.Errorf("decode chat history: %w", err)
	}
	report.EvidenceTags = []string(tags)
	if report.EvidenceTags == nil {
		report.EvidenceTags = []string{}
	}
	report.Status = model.ReportStatus(status)
	report.FillCounts()
	return report, nil
}
