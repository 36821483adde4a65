package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines the aggregate queries behind the overview.
type RepositoryPort interface {
	CountByStatus(ctx context.Context) ([]CountRow, error)
	CountByPriority(ctx context.Context) ([]CountRow, error)
	CountByDepartment(ctx context.Context) ([]CountRow, error)
	OpenAgeBuckets(ctx context.Context) ([]CountRow, error)
}

// Repository provides PostgreSQL backed aggregates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountByStatus groups live tickets by lifecycle state.
func (r *Repository) CountByStatus(ctx context.Context) ([]CountRow, error) {
	return r.countRows(ctx, `
		SELECT status, COUNT(*) FROM tickets
		WHERE deleted_at IS NULL
		GROUP BY status ORDER BY status`)
}

// CountByPriority groups live tickets by priority.
func (r *Repository) CountByPriority(ctx context.Context) ([]CountRow, error) {
	return r.countRows(ctx, `
		SELECT priority, COUNT(*) FROM tickets
		WHERE deleted_at IS NULL
		GROUP BY priority ORDER BY priority`)
}

// CountByDepartment groups live tickets by owning department.
func (r *Repository) CountByDepartment(ctx context.Context) ([]CountRow, error) {
	return r.countRows(ctx, `
		SELECT COALESCE(d.name, 'Unassigned'), COUNT(*)
		FROM tickets t
		LEFT JOIN departments d ON d.id = t.department_id AND d.deleted_at IS NULL
		WHERE t.deleted_at IS NULL
		GROUP BY 1 ORDER BY 1`)
}

// OpenAgeBuckets slots unfinished tickets into age ranges.
func (r *Repository) OpenAgeBuckets(ctx context.Context) ([]CountRow, error) {
	return r.countRows(ctx, `
		SELECT bucket, COUNT(*) FROM (
			SELECT CASE
				WHEN created_at > NOW() - INTERVAL '1 day' THEN '<1d'
				WHEN created_at > NOW() - INTERVAL '7 days' THEN '1-7d'
				WHEN created_at > NOW() - INTERVAL '30 days' THEN '7-30d'
				ELSE '>30d'
			END AS bucket
			FROM tickets
			WHERE deleted_at IS NULL AND status IN ('OPEN', 'IN_PROGRESS')
		) b
		GROUP BY bucket ORDER BY bucket`)
}

func (r *Repository) countRows(ctx context.Context, query string) ([]CountRow, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CountRow
	for rows.Next() {
		var row CountRow
		if err := rows.Scan(&row.Key, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
