package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the user does not exist or is soft-deleted.
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicate indicates a username or email collision.
	ErrDuplicate = errors.New("users: username or email already in use")
	// ErrInvalid indicates rejected input.
	ErrInvalid = errors.New("users: invalid input")
)

// RepositoryPort defines data access for user administration. Mutations on a
// missing or deleted id report zero affected rows.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	UpdateProfile(ctx context.Context, user User) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) (int64, error)
	SetDepartment(ctx context.Context, id int64, departmentID *int64) (int64, error)
	SoftDelete(ctx context.Context, id int64) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userSelect = `
	SELECT u.id, u.username, u.email, u.display_name, u.department_id, d.name,
	       u.is_active, u.last_login_at, u.created_at, u.updated_at, u.deleted_at
	FROM users u
	LEFT JOIN departments d ON d.id = u.department_id AND d.deleted_at IS NULL`

// Get fetches a non-deleted user with its department name resolved.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1 AND u.deleted_at IS NULL`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// List returns a page of non-deleted users plus the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	where := []string{"u.deleted_at IS NULL"}
	args := []any{}
	if filter.Keyword != "" {
		args = append(args, "%"+filter.Keyword+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(u.username ILIKE $"+n+" OR u.email ILIKE $"+n+" OR u.display_name ILIKE $"+n+")")
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		where = append(where, "u.department_id = $"+strconv.Itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := userSelect + ` WHERE ` + cond + ` ORDER BY u.username LIMIT $` +
		strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, user)
	}
	return list, total, rows.Err()
}

// UpdateProfile updates mutable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, user User) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, display_name = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		user.ID, user.Email, user.DisplayName,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetActive enables or disables an account.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET is_active = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, active)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetDepartment moves a user between departments; nil clears the assignment.
func (r *Repository) SetDepartment(ctx context.Context, id int64, departmentID *int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET department_id = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, departmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SoftDelete marks a user deleted and disables the account in one statement.
func (r *Repository) SoftDelete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET deleted_at = NOW(), is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.DisplayName,
		&user.DepartmentID, &user.DepartmentName,
		&user.IsActive, &user.LastLoginAt,
		&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	return user, err
}

var _ RepositoryPort = (*Repository)(nil)
