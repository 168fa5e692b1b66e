package consent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger records which clients a subject has authorized
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func NewLedger(repo Repository, opts ...Option) *Ledger {
	l := &Ledger{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindConsent returns records whose scopes are a superset of scopes, oldest first
func (l *Ledger) FindConsent(ctx context.Context, subject, clientID string, status Status, typ Type, scopes []string) ([]Record, error) {
	records, err := l.repo.Find(ctx, Query{
		Subject:  subject,
		ClientID: clientID,
		Status:   status,
		Type:     typ,
		Scopes:   scopes,
	})
	if err != nil {
		return nil, err
	}
	sortByCreated(records)
	return records, nil
}

func (l *Ledger) CreateConsent(ctx context.Context, subject, clientID string, typ Type, scopes []string) (Record, error) {
	rec, err := l.repo.Create(ctx, Record{
		ID:        uuid.New(),
		Subject:   subject,
		ClientID:  clientID,
		Status:    StatusValid,
		Type:      typ,
		Scopes:    scopes,
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to create consent for client %s: %w", clientID, err)
	}
	slog.Info("consent created", "consent_id", rec.ID, "client_id", clientID, "type", typ)
	return rec, nil
}

// ValidPermanent returns the valid permanent records covering scopes
func (l *Ledger) ValidPermanent(ctx context.Context, subject, clientID string, scopes []string) ([]Record, error) {
	return l.FindConsent(ctx, subject, clientID, StatusValid, TypePermanent, scopes)
}

// Ensure reuses the most recently created valid permanent record, creating one only when none match.
// Concurrent calls may create duplicates; they are harmless.
func (l *Ledger) Ensure(ctx context.Context, subject, clientID string, scopes []string) (Record, error) {
	records, err := l.ValidPermanent(ctx, subject, clientID, scopes)
	if err != nil {
		return Record{}, err
	}
	return l.Reuse(ctx, records, subject, clientID, scopes)
}

// Reuse is Ensure for callers that already looked up the valid permanent records
func (l *Ledger) Reuse(ctx context.Context, records []Record, subject, clientID string, scopes []string) (Record, error) {
	if latest, ok := Latest(records); ok {
		return latest, nil
	}
	return l.CreateConsent(ctx, subject, clientID, TypePermanent, scopes)
}

func (l *Ledger) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := l.repo.SetStatus(ctx, id, StatusRevoked); err != nil {
		return err
	}
	slog.Info("consent revoked", "consent_id", id)
	return nil
}

// RevokeClient withdraws every valid consent subject gave clientID and reports how many
func (l *Ledger) RevokeClient(ctx context.Context, subject, clientID string) (int, error) {
	records, err := l.FindConsent(ctx, subject, clientID, StatusValid, "", nil)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := l.Revoke(ctx, rec.ID); err != nil {
			return 0, fmt.Errorf("failed to revoke consent %s: %w", rec.ID, err)
		}
	}
	return len(records), nil
}

// Latest picks the most recently created record from a list ordered oldest first
func Latest(records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	return records[len(records)-1], true
}
