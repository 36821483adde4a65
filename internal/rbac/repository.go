package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskhive/deskhive/internal/platform/db"
)

var (
	// ErrNotFound indicates that the requested record does not exist or is
	// already soft-deleted.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicateCode indicates a code collision among non-deleted rows.
	ErrDuplicateCode = errors.New("rbac: code already in use")
	// ErrInvalid indicates rejected administrative input.
	ErrInvalid = errors.New("rbac: invalid input")
)

// RepositoryPort defines the durable role/permission stores. Mutations on a
// missing or already-deleted id report zero affected rows rather than an
// error; callers inspect the count.
type RepositoryPort interface {
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (int64, error)
	SoftDeleteRole(ctx context.Context, id int64) (int64, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, code string) (Role, error)
	ListRoles(ctx context.Context, keyword string) ([]Role, error)

	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (int64, error)
	SoftDeletePermission(ctx context.Context, id int64) (int64, error)
	ListPermissions(ctx context.Context, keyword string) ([]Permission, error)

	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	RoleCodesForUser(ctx context.Context, userID int64) ([]string, error)
	BaseRolesForUser(ctx context.Context, userID int64) ([]BaseRole, error)
	UserEffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, code, base_role, is_active, created_at, updated_at, deleted_at`

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, code, base_role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+roleColumns,
		role.Name, role.Code, role.BaseRole, role.IsActive,
	)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapDuplicate(err)
	}
	return created, nil
}

// UpdateRole updates a non-deleted role and reports the affected row count.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles
		SET name = $2, code = $3, base_role = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		role.ID, role.Name, role.Code, role.BaseRole, role.IsActive,
	)
	if err != nil {
		return 0, mapDuplicate(err)
	}
	return tag.RowsAffected(), nil
}

// SoftDeleteRole marks a role deleted. Repeated deletes affect zero rows.
func (r *Repository) SoftDeleteRole(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetRole fetches a non-deleted role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 AND deleted_at IS NULL`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByCode fetches a non-deleted role by its unique code.
func (r *Repository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE code = $1 AND deleted_at IS NULL`, code)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all active roles, optionally filtered by a keyword
// substring match on name.
func (r *Repository) ListRoles(ctx context.Context, keyword string) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE deleted_at IS NULL`
	args := []any{}
	if keyword != "" {
		query += ` AND name ILIKE '%' || $1 || '%'`
		args = append(args, keyword)
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

const permissionColumns = `id, name, code, sort_order, created_at, deleted_at`

// CreatePermission inserts a new permission.
func (r *Repository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, code, sort_order, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING `+permissionColumns,
		perm.Name, perm.Code, perm.SortOrder,
	)
	created, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapDuplicate(err)
	}
	return created, nil
}

// UpdatePermission updates a non-deleted permission and reports the affected
// row count.
func (r *Repository) UpdatePermission(ctx context.Context, perm Permission) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE permissions SET name = $2, code = $3, sort_order = $4
		WHERE id = $1 AND deleted_at IS NULL`,
		perm.ID, perm.Name, perm.Code, perm.SortOrder,
	)
	if err != nil {
		return 0, mapDuplicate(err)
	}
	return tag.RowsAffected(), nil
}

// SoftDeletePermission marks a permission deleted. Repeated deletes affect
// zero rows.
func (r *Repository) SoftDeletePermission(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE permissions SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListPermissions returns all active permissions, optionally filtered by a
// keyword substring match on name.
func (r *Repository) ListPermissions(ctx context.Context, keyword string) ([]Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE deleted_at IS NULL`
	args := []any{}
	if keyword != "" {
		query += ` AND name ILIKE '%' || $1 || '%'`
		args = append(args, keyword)
	}
	query += ` ORDER BY sort_order, code`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// RolePermissions returns the active permissions granted to a role,
// excluding soft-deleted rows on either side of the association.
func (r *Repository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.code, p.sort_order, p.created_at, p.deleted_at
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id AND r.deleted_at IS NULL
		JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
		WHERE rp.role_id = $1
		ORDER BY p.sort_order, p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// ReplaceRolePermissions swaps the permission set of a role in one
// transaction.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id, created_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole grants a role to a user. Assigning an already-held role is a
// no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole revokes a role from a user.
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// RoleCodesForUser returns the codes of the active roles held by a user.
func (r *Repository) RoleCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	return r.stringColumn(ctx, `
		SELECT r.code
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.deleted_at IS NULL AND r.is_active
		WHERE ur.user_id = $1
		ORDER BY r.code`, userID)
}

// BaseRolesForUser returns the base-role tags of the active roles held by a
// user.
func (r *Repository) BaseRolesForUser(ctx context.Context, userID int64) ([]BaseRole, error) {
	codes, err := r.stringColumn(ctx, `
		SELECT DISTINCT r.base_role
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.deleted_at IS NULL AND r.is_active
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	bases := make([]BaseRole, len(codes))
	for i, c := range codes {
		bases[i] = BaseRole(c)
	}
	return bases, nil
}

// UserEffectivePermissions returns the deduplicated permission codes a user
// holds through every active role; a soft-deleted role or permission grants
// nothing even when the association row still exists.
func (r *Repository) UserEffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return r.stringColumn(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.deleted_at IS NULL AND r.is_active
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
		WHERE ur.user_id = $1
		ORDER BY p.code`, userID)
}

func (r *Repository) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Code, &role.BaseRole, &role.IsActive, &role.CreatedAt, &role.UpdatedAt, &role.DeletedAt)
	return role, err
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Name, &perm.Code, &perm.SortOrder, &perm.CreatedAt, &perm.DeletedAt)
	return perm, err
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
