// Package registry tracks workers and hands them out to new sessions.
package registry

import (
	"strings"
	"time"
	"unicode"
)

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
	StatusOffline   Status = "OFFLINE"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusAvailable, StatusBusy, StatusOffline:
		return s, true
	default:
		return "", false
	}
}

type Worker struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Specialist bool      `json:"specialist"`
	Status     Status    `json:"status"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type NewWorker struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Specialist bool   `json:"specialist"`
	Active     *bool  `json:"active,omitempty"`
	Status     string `json:"status,omitempty"`
}

// WorkerPatch carries the admin-editable fields. Nil fields are left alone.
type WorkerPatch struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Specialist *bool   `json:"specialist,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// validEmail wants a single address with an @ and no whitespace or control
// characters, since the address ends up in mail headers.
func validEmail(email string) bool {
	if email == "" || !strings.Contains(email, "@") {
		return false
	}
	return strings.IndexFunc(email, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}
