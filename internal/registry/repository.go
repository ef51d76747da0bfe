package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles and memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRole loads a role definition by id.
func (r *Repository) GetRole(ctx context.Context, id identity.RoleID) (Role, error) {
	var (
		role            Role
		roleID, adminID string
	)
	err := r.pool.QueryRow(ctx, `SELECT role_id, name, admin_role_id, requestable FROM roles WHERE role_id = $1`, id.String()).
		Scan(&roleID, &role.Name, &adminID, &role.Requestable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("role %s: %w", id, shared.ErrNotFound)
		}
		return Role{}, err
	}
	if role.ID, err = identity.ParseRoleID(roleID); err != nil {
		return Role{}, err
	}
	if role.AdminRole, err = identity.ParseRoleID(adminID); err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns every role ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, name, admin_role_id, requestable FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var (
			role            Role
			roleID, adminID string
		)
		if err := rows.Scan(&roleID, &role.Name, &adminID, &role.Requestable); err != nil {
			return nil, err
		}
		if role.ID, err = identity.ParseRoleID(roleID); err != nil {
			return nil, err
		}
		if role.AdminRole, err = identity.ParseRoleID(adminID); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// UpsertRole inserts or updates a role definition.
func (r *Repository) UpsertRole(ctx context.Context, role Role) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO roles (role_id, name, admin_role_id, requestable)
VALUES ($1, $2, $3, $4)
ON CONFLICT (role_id) DO UPDATE SET name = EXCLUDED.name, admin_role_id = EXCLUDED.admin_role_id, requestable = EXCLUDED.requestable`,
		role.ID.String(), role.Name, role.AdminRole.String(), role.Requestable)
	return err
}

// SetRoleAdmin rewires the administrating role.
func (r *Repository) SetRoleAdmin(ctx context.Context, id, admin identity.RoleID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET admin_role_id = $2 WHERE role_id = $1`, id.String(), admin.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// HasMember reports whether account holds role.
func (r *Repository) HasMember(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM role_memberships WHERE role_id = $1 AND account = $2)`,
		role.String(), account.String()).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// AddMember inserts the membership, reporting whether a row was added.
// Re-granting is a no-op at the storage level.
func (r *Repository) AddMember(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO role_memberships (role_id, account, granted_at)
VALUES ($1, $2, NOW()) ON CONFLICT (role_id, account) DO NOTHING`, role.String(), account.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveMember deletes the membership, reporting whether a row was removed.
func (r *Repository) RemoveMember(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_memberships WHERE role_id = $1 AND account = $2`, role.String(), account.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
