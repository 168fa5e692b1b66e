package consent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on the consents table
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Find(ctx context.Context, q Query) ([]Record, error) {
	scopes := q.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, subject, client_id, status, type, scopes, created_at
		FROM consents
		WHERE subject = $1
		  AND client_id = $2
		  AND ($3 = '' OR status = $3)
		  AND ($4 = '' OR type = $4)
		  AND scopes @> $5::text[]
		ORDER BY created_at, id`,
		q.Subject, q.ClientID, string(q.Status), string(q.Type), scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to find consents: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var status, typ string
		if err := rows.Scan(&rec.ID, &rec.Subject, &rec.ClientID, &status, &typ, &rec.Scopes, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		rec.Status = Status(status)
		rec.Type = Type(typ)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consents: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec Record) (Record, error) {
	scopes := rec.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO consents (id, subject, client_id, status, type, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Subject, rec.ClientID, string(rec.Status), string(rec.Type), scopes, rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create consent: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE consents SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update consent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConsentNotFound
	}
	return nil
}
