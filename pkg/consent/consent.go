package consent

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var ErrConsentNotFound = errors.New("consent not found")

type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
)

type Type string

const (
	TypePermanent Type = "permanent"
	TypeOneTime   Type = "one_time"
	TypeExternal  Type = "external"
)

// Record binds a subject, a client and the scopes the subject approved
type Record struct {
	ID        uuid.UUID
	Subject   string
	ClientID  string
	Status    Status
	Type      Type
	Scopes    []string
	CreatedAt time.Time
}

// Covers reports whether the record grants every scope in scopes
func (r Record) Covers(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(r.Scopes, s) {
			return false
		}
	}
	return true
}

// Query selects records for a subject and client; empty Status or Type match any
type Query struct {
	Subject  string
	ClientID string
	Status   Status
	Type     Type
	Scopes   []string
}

func (q Query) matches(r Record) bool {
	return r.Subject == q.Subject &&
		r.ClientID == q.ClientID &&
		(q.Status == "" || r.Status == q.Status) &&
		(q.Type == "" || r.Type == q.Type) &&
		r.Covers(q.Scopes)
}

// sortByCreated orders records oldest first, with the id breaking ties
func sortByCreated(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}
