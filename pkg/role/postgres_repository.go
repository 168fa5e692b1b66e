package role

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRoleRepository implements RoleRepository on the role_permissions table
type PostgresRoleRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRoleRepository(db *pgxpool.Pool) *PostgresRoleRepository {
	return &PostgresRoleRepository{db: db}
}

func (r *PostgresRoleRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, role_name, packed_permissions, description, updated_at
		FROM role_permissions
		ORDER BY role_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return collectRoles(rows)
}

func (r *PostgresRoleRepository) FindByName(ctx context.Context, name string) ([]Role, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, role_name, packed_permissions, description, updated_at
		FROM role_permissions
		WHERE lower(role_name) = lower($1)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find role %s: %w", name, err)
	}
	return collectRoles(rows)
}

func (r *PostgresRoleRepository) UpsertRole(ctx context.Context, role Role) (Role, error) {
	var out Role
	err := r.db.QueryRow(ctx, `
		INSERT INTO role_permissions (role_name, packed_permissions, description, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (role_name)
		DO UPDATE SET packed_permissions = EXCLUDED.packed_permissions,
		              description = EXCLUDED.description,
		              updated_at = now()
		RETURNING id, role_name, packed_permissions, description, updated_at`,
		role.Name, role.Permissions, role.Description,
	).Scan(&out.ID, &out.Name, &out.Permissions, &out.Description, &out.UpdatedAt)
	if err != nil {
		return Role{}, fmt.Errorf("failed to upsert role %s: %w", role.Name, err)
	}
	return out, nil
}

func (r *PostgresRoleRepository) DeleteRole(ctx context.Context, name string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete role %s: %w", name, err)
	}
	return nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Permissions, &role.Description, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}
