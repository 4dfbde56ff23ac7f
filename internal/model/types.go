package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role of a user
type Role string

const (
	RoleAnalyst Role = "analyst"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAnalyst || r == RoleAdmin
}

// User represents an account. PasswordHash is never serialized.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins first and last name
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// PublicProfile is the user representation returned to clients
type PublicProfile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	FullName  string     `json:"fullName"`
	Role      Role       `json:"role"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Profile returns the public view of the user
func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Role:      u.Role,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

const (
	UnknownDevice = "Unknown Device"
	UnknownIP     = "Unknown IP"
)

// Session represents one refresh token grant (one per login/device)
type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	RefreshTokenHash string
	DeviceInfo       string
	IPAddress        string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsExpired reports whether the session is past its expiry at now
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionView is the client-facing session listing entry
type SessionView struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  string    `json:"ipAddress"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// View drops the token hash
func (s *Session) View() SessionView {
	return SessionView{
		ID:         s.ID.String(),
		DeviceInfo: s.DeviceInfo,
		IPAddress:  s.IPAddress,
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
	}
}

// ReportStatus is the lifecycle state of a report
type ReportStatus string

const (
	StatusDraft     ReportStatus = "draft"
	StatusCompleted ReportStatus = "completed"
)

// Valid reports whether s is a known status
func (s ReportStatus) Valid() bool {
	return s == StatusDraft || s == StatusCompleted
}

// ChatRole identifies the author of a chat message
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ReportImage is a photographed piece of evidence attached to a report
type ReportImage struct {
	URI        string    `json:"uri" bson:"uri"`
	UploadedAt time.Time `json:"uploadedAt" bson:"uploaded_at"`
	Size       *int64    `json:"size,omitempty" bson:"size,omitempty"`
}

// ChatMessage is one entry of the assistant transcript
type ChatMessage struct {
	ID        string    `json:"id" bson:"id"`
	Role      ChatRole  `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	ImageURI  *string   `json:"imageUri" bson:"image_uri"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Report is a persisted forensic case record
type Report struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"userId"`
	CaseID        string        `json:"caseId"`
	Images        []ReportImage `json:"images"`
	ChatHistory   []ChatMessage `json:"chatHistory,omitempty"`
	ReportContent string        `json:"reportContent"`
	EvidenceTags  []string      `json:"evidenceTags"`
	Summary       string        `json:"summary"`
	Status        ReportStatus  `json:"status"`
	ImageCount    int           `json:"imageCount"`
	MessageCount  int           `json:"messageCount"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// FillCounts sets the derived count fields
func (r *Report) FillCounts() {
	r.ImageCount = len(r.Images)
	r.MessageCount = len(r.ChatHistory)
}

// ReportStats is the per-user status breakdown
type ReportStats struct {
	Total     int `json:"total"`
	Draft     int `json:"draft"`
	Completed int `json:"completed"`
}
