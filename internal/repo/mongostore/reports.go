package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/repo"
)

type reportDoc struct {
	ID            string              `bson:"_id"`
	UserID        string              `bson:"user_id"`
	CaseID        string              `bson:"case_id"`
	Images        []model.ReportImage `bson:"images"`
	ChatHistory   []model.ChatMessage `bson:"chat_history"`
	ReportContent string              `bson:"report_content"`
	EvidenceTags  []string            `bson:"evidence_tags"`
	Summary       string              `bson:"summary"`
	Status        string              `bson:"status"`
	CreatedAt     time.Time           `bson:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at"`
}

func newReportDoc(r *model.Report) reportDoc {
	doc := reportDoc{
		ID:            r.ID.String(),
		UserID:        r.UserID.String(),
		CaseID:        r.CaseID,
		Images:        r.Images,
		ChatHistory:   r.ChatHistory,
		ReportContent: r.ReportContent,
		EvidenceTags:  r.EvidenceTags,
		Summary:       r.Summary,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if doc.Images == nil {
		doc.Images = []model.ReportImage{}
	}
	if doc.ChatHistory == nil {
		doc.ChatHistory = []model.ChatMessage{}
	}
	if doc.EvidenceTags == nil {
		doc.EvidenceTags = []string{}
	}
	return doc
}

func (d reportDoc) toModel() (model.Report, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return model.Report{}, fmt.Errorf("parse report id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return model.Report{}, fmt.Errorf("parse report user id %q: %w", d.UserID, err)
	}
	r := model.Report{
		ID:            id,
		UserID:        userID,
		CaseID:        d.CaseID,
		Images:        d.Images,
		ChatHistory:   d.ChatHistory,
		ReportContent: d.ReportContent,
		EvidenceTags:  d.EvidenceTags,
		Summary:       d.Summary,
		Status:        model.ReportStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if r.EvidenceTags == nil {
		r.EvidenceTags = []string{}
	}
	r.FillCounts()
	return r, nil
}

// ReportRepo implements repo.ReportRepo on MongoDB
type ReportRepo struct {
	reports *mongo.Collection
}

var _ repo.ReportRepo = (*ReportRepo)(nil)

func NewReportRepo(ctx context.Context, db *mongo.Database) (*ReportRepo, error) {
	r := &ReportRepo{reports: db.Collection(ReportsCollection)}

	_, err := r.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "case_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create report indexes: %w", err)
	}
	return r, nil
}

func (r *ReportRepo) Create(ctx context.Context, report *model.Report) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now

	if _, err := r.reports.InsertOne(ctx, newReportDoc(report)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repo.ErrDuplicate
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// LatestCaseID sorts by string length before value so a five digit
// sequence ranks above a four digit one.
func (r *ReportRepo) LatestCaseID(ctx context.Context, prefix string) (string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"case_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}}},
		{{Key: "$project", Value: bson.M{"case_id": 1, "len": bson.M{"$strLenCP": "$case_id"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "len", Value: -1}, {Key: "case_id", Value: -1}}}},
		{{Key: "$limit", Value: 1}},
	}
	cursor, err := r.reports.Aggregate(ctx, pipeline)
	if err != nil {
		return "", fmt.Errorf("latest case id: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		CaseID string `bson:"case_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return "", fmt.Errorf("decode latest case id: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].CaseID, nil
}

func (r *ReportRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Report, error) {
	var doc reportDoc
	if err := r.reports.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Report{}, repo.ErrNotFound
		}
		return model.Report{}, fmt.Errorf("find report: %w", err)
	}
	return doc.toModel()
}

func (r *ReportRepo) ListByUser(ctx context.Context, userID uuid.UUID, status model.ReportStatus) ([]model.Report, error) {
	filter := bson.M{"user_id": userID.String()}
	if status != "" {
		filter["status"] = string(status)
	}
	cursor, err := r.reports.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []reportDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	reports := make([]model.Report, 0, len(docs))
	for _, d := range docs {
		report, err := d.toModel()
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *ReportRepo) Update(ctx context.Context, report *model.Report) error {
	report.UpdatedAt = time.Now().UTC()
	doc := newReportDoc(report)
	result, err := r.reports.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{
		"images":         doc.Images,
		"chat_history":   doc.ChatHistory,
		"report_content": doc.ReportContent,
		"evidence_tags":  doc.EvidenceTags,
		"summary":        doc.Summary,
		"status":         doc.Status,
		"updated_at":     doc.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if result.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ReportRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.reports.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if result.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ReportRepo) CountByStatus(ctx context.Context, userID uuid.UUID) (model.ReportStats, error) {
	var stats model.ReportStats
	counts := []struct {
		filter bson.M
		dst    *int
	}{
		{bson.M{"user_id": userID.String()}, &stats.Total},
		{bson.M{"user_id": userID.String(), "status": string(model.StatusDraft)}, &stats.Draft},
		{bson.M{"user_id": userID.String(), "status": string(model.StatusCompleted)}, &stats.Completed},
	}
	for _, c := range counts {
		n, err := r.reports.CountDocuments(ctx, c.filter)
		if err != nil {
			return model.ReportStats{}, fmt.Errorf("count reports: %w", err)
		}
		*c.dst = int(n)
	}
	return stats, nil
}
