package handlers

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/forensicnotes/server/internal/apperr"
	"github.com/forensicnotes/server/internal/model"
)

const (
	msgValidationFailed = "validation failed"

	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
	maxNameLength    = 50
)

// fieldErrors collects input problems for one request
type fieldErrors []apperr.FieldError

func (fe *fieldErrors) add(field, message string) {
	*fe = append(*fe, apperr.FieldError{Field: field, Message: message})
}

func (fe fieldErrors) err() error {
	if len(fe) == 0 {
		return nil
	}
	return apperr.Validation(msgValidationFailed, fe...)
}

// validEmail accepts a bare addr-spec whose domain has a dot
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (fe *fieldErrors) email(field, value string) {
	if !validEmail(value) {
		fe.add(field, "Please provide a valid email address")
	}
}

// password enforces length and character classes; label prefixes messages
// ("Password", "New password")
func (fe *fieldErrors) password(field, label, value string) {
	if value == "" {
		fe.add(field, label+" is required")
		return
	}
	if utf8.RuneCountInString(value) < minPasswordLength {
		fe.add(field, label+" must be at least 8 characters long")
		return
	}
	if len(value) > maxPasswordBytes {
		fe.add(field, label+" cannot exceed 72 bytes")
		return
	}
	var upper, lower, digit bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		fe.add(field, label+" must contain at least one uppercase letter, one lowercase letter, and one number")
	}
}

// name checks an already trimmed name; emptyMsg differs between signup and profile edits
func (fe *fieldErrors) name(field, label, value, emptyMsg string) {
	if value == "" {
		fe.add(field, emptyMsg)
		return
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		fe.add(field, label+" cannot exceed 50 characters")
	}
}

func (fe *fieldErrors) images(images []model.ReportImage) {
	for _, img := range images {
		if strings.TrimSpace(img.URI) == "" {
			fe.add("images.uri", "Image URI is required")
		}
		if img.Size != nil && *img.Size < 0 {
			fe.add("images.size", "Image size must be a non-negative number")
		}
	}
}

func (fe *fieldErrors) chat(messages []model.ChatMessage) {
	for _, m := range messages {
		if m.Role != model.ChatRoleUser && m.Role != model.ChatRoleAssistant {
			fe.add("chatHistory.role", `Role must be either "user" or "assistant"`)
		}
		if strings.TrimSpace(m.Content) == "" {
			fe.add("chatHistory.content", "Message content is required")
		}
	}
}

func (fe *fieldErrors) status(status model.ReportStatus) {
	if !status.Valid() {
		fe.add("status", `Status must be either "draft" or "completed"`)
	}
}
