package tickets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines durable ticket storage. Status mutations on a
// missing or deleted id report zero affected rows.
type RepositoryPort interface {
	Create(ctx context.Context, ticket Ticket) (Ticket, error)
	Get(ctx context.Context, id int64) (Ticket, error)
	GetByRef(ctx context.Context, refKey string) (Ticket, error)
	List(ctx context.Context, filter ListFilter) ([]Ticket, int, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) (int64, error)
	SetAssignee(ctx context.Context, id int64, assigneeID int64) (int64, error)
	SoftDelete(ctx context.Context, id int64) (int64, error)
	AddComment(ctx context.Context, comment Comment) (Comment, error)
	Comments(ctx context.Context, ticketID int64) ([]Comment, error)
	OverdueUnbreached(ctx context.Context, now time.Time, limit int) ([]Ticket, error)
	MarkSLABreached(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ticketColumns = `id, ref_key, title, body, status, priority, requester_id, assignee_id,
	department_id, sla_due_at, sla_breached, resolved_at, closed_at, created_at, updated_at, deleted_at`

// Create inserts a new ticket.
func (r *Repository) Create(ctx context.Context, ticket Ticket) (Ticket, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tickets (ref_key, title, body, status, priority, requester_id, department_id, sla_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING `+ticketColumns,
		ticket.RefKey, ticket.Title, ticket.Body, ticket.Status, ticket.Priority,
		ticket.RequesterID, ticket.DepartmentID, ticket.SLADueAt,
	)
	return scanTicket(row)
}

// Get fetches a non-deleted ticket by id.
func (r *Repository) Get(ctx context.Context, id int64) (Ticket, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 AND deleted_at IS NULL`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, err
	}
	return ticket, nil
}

// GetByRef fetches a non-deleted ticket by its reference key.
func (r *Repository) GetByRef(ctx context.Context, refKey string) (Ticket, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ref_key = $1 AND deleted_at IS NULL`, refKey)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, err
	}
	return ticket, nil
}

// List returns a page of non-deleted tickets plus the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Ticket, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if filter.Keyword != "" {
		args = append(args, "%"+filter.Keyword+"%")
		n := "$" + strconv.Itoa(len(args))
		where = append(where, "(title ILIKE "+n+" OR ref_key ILIKE "+n+")")
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		add("priority = ?", filter.Priority)
	}
	if filter.DepartmentID != nil {
		add("department_id = ?", *filter.DepartmentID)
	}
	if filter.AssigneeID != nil {
		add("assignee_id = ?", *filter.AssigneeID)
	}
	if filter.RequesterID != nil {
		add("requester_id = ?", *filter.RequesterID)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}

	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + cond +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, ticket)
	}
	return list, total, rows.Err()
}

// UpdateStatus moves a ticket between states, guarded by the expected
// current state so concurrent transitions cannot race each other.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) (int64, error) {
	set := []string{"status = $3", "updated_at = NOW()"}
	args := []any{id, from, to}
	for column, value := range updates {
		args = append(args, value)
		set = append(set, column+" = $"+strconv.Itoa(len(args)))
	}
	query := `UPDATE tickets SET ` + strings.Join(set, ", ") +
		` WHERE id = $1 AND status = $2 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetAssignee records who works the ticket.
func (r *Repository) SetAssignee(ctx context.Context, id int64, assigneeID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tickets SET assignee_id = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, assigneeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SoftDelete marks a ticket deleted. Repeated deletes affect zero rows.
func (r *Repository) SoftDelete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tickets SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AddComment appends a message to the ticket thread.
func (r *Repository) AddComment(ctx context.Context, comment Comment) (Comment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO ticket_comments (ticket_id, author_id, body, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, ticket_id, author_id, body, created_at`,
		comment.TicketID, comment.AuthorID, comment.Body,
	)
	var created Comment
	err := row.Scan(&created.ID, &created.TicketID, &created.AuthorID, &created.Body, &created.CreatedAt)
	return created, err
}

// Comments returns the ticket thread oldest-first.
func (r *Repository) Comments(ctx context.Context, ticketID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ticket_id, author_id, body, created_at
		FROM ticket_comments WHERE ticket_id = $1 ORDER BY created_at`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// OverdueUnbreached returns open tickets whose response window has lapsed
// and which have not yet been flagged.
func (r *Repository) OverdueUnbreached(ctx context.Context, now time.Time, limit int) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE deleted_at IS NULL AND sla_breached = FALSE
		  AND status IN ($1, $2) AND sla_due_at < $3
		ORDER BY sla_due_at
		LIMIT $4`, StatusOpen, StatusInProgress, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ticket)
	}
	return list, rows.Err()
}

// MarkSLABreached flags the ticket; the flag is never cleared.
func (r *Repository) MarkSLABreached(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tickets SET sla_breached = TRUE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	return err
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(
		&t.ID, &t.RefKey, &t.Title, &t.Body, &t.Status, &t.Priority,
		&t.RequesterID, &t.AssigneeID, &t.DepartmentID,
		&t.SLADueAt, &t.SLABreached, &t.ResolvedAt, &t.ClosedAt,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	return t, err
}

var _ RepositoryPort = (*Repository)(nil)
