package departments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the department does not exist or is soft-deleted.
	ErrNotFound = errors.New("departments: not found")
	// ErrDuplicateCode indicates a code collision among non-deleted rows.
	ErrDuplicateCode = errors.New("departments: code already in use")
	// ErrInvalid indicates rejected input.
	ErrInvalid = errors.New("departments: invalid input")
)

// RepositoryPort defines data access for departments. Mutations on a missing
// or deleted id report zero affected rows.
type RepositoryPort interface {
	Create(ctx context.Context, dept Department) (Department, error)
	Update(ctx context.Context, dept Department) (int64, error)
	SoftDelete(ctx context.Context, id int64) (int64, error)
	Get(ctx context.Context, id int64) (Department, error)
	List(ctx context.Context, keyword string) ([]Department, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const deptColumns = `id, name, code, manager_id, created_at, updated_at, deleted_at`

// Create inserts a new department.
func (r *Repository) Create(ctx context.Context, dept Department) (Department, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO departments (name, code, manager_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+deptColumns,
		dept.Name, dept.Code, dept.ManagerID,
	)
	created, err := scanDepartment(row)
	if err != nil {
		return Department{}, mapDuplicate(err)
	}
	return created, nil
}

// Update updates a non-deleted department and reports the affected row count.
func (r *Repository) Update(ctx context.Context, dept Department) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE departments
		SET name = $2, code = $3, manager_id = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		dept.ID, dept.Name, dept.Code, dept.ManagerID,
	)
	if err != nil {
		return 0, mapDuplicate(err)
	}
	return tag.RowsAffected(), nil
}

// SoftDelete marks a department deleted. Repeated deletes affect zero rows.
func (r *Repository) SoftDelete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE departments SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Get fetches a non-deleted department by id.
func (r *Repository) Get(ctx context.Context, id int64) (Department, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deptColumns+` FROM departments WHERE id = $1 AND deleted_at IS NULL`, id)
	dept, err := scanDepartment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, ErrNotFound
		}
		return Department{}, err
	}
	return dept, nil
}

// List returns non-deleted departments, optionally filtered by keyword on
// name or code.
func (r *Repository) List(ctx context.Context, keyword string) ([]Department, error) {
	query := `SELECT ` + deptColumns + ` FROM departments WHERE deleted_at IS NULL`
	args := []any{}
	if keyword != "" {
		query += ` AND (name ILIKE $1 OR code ILIKE $1)`
		args = append(args, "%"+keyword+"%")
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var depts []Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		depts = append(depts, dept)
	}
	return depts, rows.Err()
}

func scanDepartment(row pgx.Row) (Department, error) {
	var dept Department
	err := row.Scan(&dept.ID, &dept.Name, &dept.Code, &dept.ManagerID, &dept.CreatedAt, &dept.UpdatedAt, &dept.DeletedAt)
	return dept, err
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
