// Package report manages forensic case reports and allocates their case ids.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forensicnotes/server/internal/apperr"
	"github.com/forensicnotes/server/internal/events"
	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

const (
	summaryLength     = 200
	maxCaseIDAttempts = 5
)

// CreateInput is the client-supplied content of a new report
type CreateInput struct {
	Images        []model.ReportImage
	ChatHistory   []model.ChatMessage
	ReportContent string
	EvidenceTags  []string
	Status        model.ReportStatus
}

// UpdateInput holds the fields to change. Nil fields are left alone;
// ChatHistory is appended rather than replaced.
type UpdateInput struct {
	Images        *[]model.ReportImage
	ChatHistory   []model.ChatMessage
	ReportContent *string
	EvidenceTags  *[]string
	Status        *model.ReportStatus
}

// Service implements report CRUD scoped to the owning user
type Service struct {
	reports   repo.ReportRepo
	publisher events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a new report service
func NewService(reports repo.ReportRepo, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		reports:   reports,
		publisher: publisher,
		log:       logger.With().Str("component", "report").Logger(),
		now:       time.Now,
	}
}

// Create stores a new report under the next free case id of the current year
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (model.Report, error) {
	now := s.now().UTC()
	status := in.Status
	if status == "" {
		status = model.StatusDraft
	}

	report := model.Report{
		UserID:        userID,
		Images:        stampImages(in.Images, now),
		ChatHistory:   stampMessages(in.ChatHistory, now),
		ReportContent: in.ReportContent,
		EvidenceTags:  NormalizeTags(in.EvidenceTags),
		Summary:       Summarize(in.ReportContent),
		Status:        status,
	}

	prefix := fmt.Sprintf("CASE-%d-", now.Year())
	for attempt := 1; ; attempt++ {
		caseID, err := s.nextCaseID(ctx, prefix)
		if err != nil {
			return model.Report{}, apperr.Internal("create report failed", err)
		}
		report.ID = uuid.Nil
		report.CaseID = caseID

		err = s.reports.Create(ctx, &report)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return model.Report{}, apperr.Internal("create report failed", err)
		}
		if attempt >= maxCaseIDAttempts {
			return model.Report{}, apperr.Internal("create report failed",
				fmt.Errorf("case id allocation gave up after %d attempts", attempt))
		}
		s.log.Debug().Str("case_id", caseID).Int("attempt", attempt).Msg("case id taken, retrying")
	}
	report.FillCounts()

	s.log.Info().Str("user_id", userID.String()).Str("case_id", report.CaseID).Msg("report created")
	s.publish(ctx, events.New(events.ReportCreated, userID, map[string]string{
		"report_id": report.ID.String(),
		"case_id":   report.CaseID,
	}))
	return report, nil
}

// nextCaseID continues the sequence after the highest id with prefix
func (s *Service) nextCaseID(ctx context.Context, prefix string) (string, error) {
	latest, err := s.reports.LatestCaseID(ctx, prefix)
	if err != nil {
		return "", err
	}
	seq := 0
	if latest != "" {
		seq, err = strconv.Atoi(strings.TrimPrefix(latest, prefix))
		if err != nil {
			return "", fmt.Errorf("malformed case id %q: %w", latest, err)
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}

// Get returns a report owned by userID
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (model.Report, error) {
	return s.owned(ctx, userID, id, "access")
}

// List returns the user's reports newest first, without chat transcripts.
// An empty status returns every report.
func (s *Service) List(ctx context.Context, userID uuid.UUID, status model.ReportStatus) ([]model.Report, error) {
	reports, err := s.reports.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, apperr.Internal("list reports failed", err)
	}
	for i := range reports {
		reports[i].FillCounts()
		reports[i].ChatHistory = nil
	}
	if reports == nil {
		reports = []model.Report{}
	}
	return reports, nil
}

// Update applies in to a report owned by userID
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (model.Report, error) {
	report, err := s.owned(ctx, userID, id, "update")
	if err != nil {
		return model.Report{}, err
	}

	now := s.now().UTC()
	if in.Images != nil {
		report.Images = stampImages(*in.Images, now)
	}
	if len(in.ChatHistory) > 0 {
		report.ChatHistory = append(report.ChatHistory, stampMessages(in.ChatHistory, now)...)
	}
	if in.ReportContent != nil {
		report.ReportContent = *in.ReportContent
		// Clearing the content leaves the last summary in place
		if report.ReportContent != "" {
			report.Summary = Summarize(report.ReportContent)
		}
	}
	if in.EvidenceTags != nil {
		report.EvidenceTags = NormalizeTags(*in.EvidenceTags)
	}
	if in.Status != nil {
		report.Status = *in.Status
	}

	if err := s.reports.Update(ctx, &report); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Report{}, apperr.NotFound("report not found")
		}
		return model.Report{}, apperr.Internal("update report failed", err)
	}
	report.FillCounts()
	return report, nil
}

// Delete removes a report owned by userID
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	report, err := s.owned(ctx, userID, id, "delete")
	if err != nil {
		return err
	}
	if err := s.reports.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("report not found")
		}
		return apperr.Internal("delete report failed", err)
	}

	s.publish(ctx, events.New(events.ReportDeleted, userID, map[string]string{
		"report_id": id.String(),
		"case_id":   report.CaseID,
	}))
	return nil
}

// Stats counts the user's reports by status
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (model.ReportStats, error) {
	stats, err := s.reports.CountByStatus(ctx, userID)
	if err != nil {
		return model.ReportStats{}, apperr.Internal("report stats failed", err)
	}
	return stats, nil
}

func (s *Service) owned(ctx context.Context, userID, id uuid.UUID, verb string) (model.Report, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Report{}, apperr.NotFound("report not found")
		}
		return model.Report{}, apperr.Internal("load report failed", err)
	}
	if report.UserID != userID {
		return model.Report{}, apperr.Forbidden("you do not have permission to " + verb + " this report")
	}
	report.FillCounts()
	return report, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("event", string(e.Type)).Msg("failed to publish audit event")
	}
}

// Summarize returns the first 200 characters of content, with "..." appended
// when it was cut.
func Summarize(content string) string {
	if utf8.RuneCountInString(content) <= summaryLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:summaryLength]) + "..."
}

// NormalizeTags trims and lowercases tags and drops empty ones
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func stampImages(images []model.ReportImage, now time.Time) []model.ReportImage {
	out := make([]model.ReportImage, 0, len(images))
	for _, img := range images {
		if img.UploadedAt.IsZero() {
			img.UploadedAt = now
		}
		out = append(out, img)
	}
	return out
}

func stampMessages(messages []model.ChatMessage, now time.Time) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		out = append(out, msg)
	}
	return out
}
