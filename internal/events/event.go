// Package events publishes audit events about account and report activity.
// Publishing is best effort: callers log failures and carry on.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an audit event
type Type string

const (
	UserSignedUp     Type = "user.signed_up"
	UserLoggedIn     Type = "user.logged_in"
	UserLoggedOut    Type = "user.logged_out"
	UserLoggedOutAll Type = "user.logged_out_all"
	UserDeactivated  Type = "user.deactivated"
	PasswordChanged  Type = "user.password_changed"
	ReportCreated    Type = "report.created"
	ReportDeleted    Type = "report.deleted"
)

// Event is the payload written to the audit queue. It never carries tokens
// or passwords.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	UserID     string            `json:"user_id"`
	IPAddress  string            `json:"ip_address,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New builds an event stamped with a fresh id and the current time
func New(typ Type, userID uuid.UUID, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID.String(),
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// WithIP returns a copy of e carrying the client address
func (e Event) WithIP(ip string) Event {
	e.IPAddress = ip
	return e
}

// Publisher delivers audit events
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
