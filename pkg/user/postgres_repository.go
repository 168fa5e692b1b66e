package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectUser = `
	SELECT u.id, u.user_name, u.email, u.first_name, u.last_name, u.middle_name,
	       u.is_registered, u.email_confirmed, u.is_blocked, u.password_hash,
	       u.security_stamp, u.failed_attempts, u.locked_until, u.created_at, u.updated_at,
	       COALESCE(array_agg(r.role_name ORDER BY r.role_name) FILTER (WHERE r.role_name IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles r ON r.user_id = u.id`

// PostgresUserRepository implements UserRepository on the users and user_roles tables
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.db.QueryRow(ctx, selectUser+` WHERE u.id = $1 GROUP BY u.id`, id)
	return scanUser(row)
}

func (r *PostgresUserRepository) GetUserByName(ctx context.Context, normalizedName string) (User, error) {
	row := r.db.QueryRow(ctx, selectUser+` WHERE u.normalized_user_name = $1 GROUP BY u.id`, normalizedName)
	return scanUser(row)
}

func (r *PostgresUserRepository) CreateUser(ctx context.Context, u User) (User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, user_name, normalized_user_name, email, first_name, last_name, middle_name,
		                   is_registered, email_confirmed, is_blocked, password_hash, security_stamp,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		u.ID, u.UserName, NormalizeUserName(u.UserName), u.Email, u.FirstName, u.LastName, u.MiddleName,
		u.IsRegistered, u.EmailConfirmed, u.IsBlocked, u.PasswordHash, u.SecurityStamp, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUserAlreadyExists
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	for _, role := range u.Roles {
		if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, u.ID, role); err != nil {
			return User{}, fmt.Errorf("failed to assign role %s: %w", role, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, fmt.Errorf("failed to commit user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) AddUserRole(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_name)
		SELECT id, $2 FROM users WHERE id = $1
		ON CONFLICT DO NOTHING`, id, role)
	if err != nil {
		return fmt.Errorf("failed to add role %s: %w", role, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetUserByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresUserRepository) SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	for _, role := range roles {
		if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, role); err != nil {
			return fmt.Errorf("failed to assign role %s: %w", role, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresUserRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	return r.exec(ctx, `UPDATE users SET is_blocked = $2, updated_at = now() WHERE id = $1`, id, blocked)
}

func (r *PostgresUserRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE users SET failed_attempts = failed_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts`, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	return attempts, nil
}

func (r *PostgresUserRepository) LockAccount(ctx context.Context, id uuid.UUID, until time.Time) error {
	return r.exec(ctx, `UPDATE users SET locked_until = $2, updated_at = now() WHERE id = $1`, id, until)
}

func (r *PostgresUserRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = now() WHERE id = $1`, id)
}

func (r *PostgresUserRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var lockedUntil *time.Time
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.FirstName, &u.LastName, &u.MiddleName,
		&u.IsRegistered, &u.EmailConfirmed, &u.IsBlocked, &u.PasswordHash,
		&u.SecurityStamp, &u.FailedAttempts, &lockedUntil, &u.CreatedAt, &u.UpdatedAt, &u.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	if lockedUntil != nil {
		u.LockedUntil = *lockedUntil
	}
	return u, nil
}
