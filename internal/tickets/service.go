package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskhive/deskhive/internal/shared"
)

// Authorizer answers permission questions for scoping decisions the route
// guard cannot make, such as whether a viewer sees every ticket or only
// their own.
type Authorizer interface {
	Can(ctx context.Context, userID int64, permission string) (bool, error)
}

// Notifier delivers ticket event notifications, typically by enqueueing a
// background task.
type Notifier interface {
	TicketEvent(ctx context.Context, userID int64, kind, title, body string, ticketID int64) error
}

// Invalidator discards derived read state after a ticket write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// CreateRequest carries the fields for filing a ticket.
type CreateRequest struct {
	Title        string
	Body         string
	Priority     Priority
	DepartmentID *int64
}

// Service owns the ticket lifecycle.
type Service struct {
	repo     RepositoryPort
	authz    Authorizer
	notifier Notifier
	audit    *shared.AuditLogger
	inv      Invalidator
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz Authorizer, logger *slog.Logger) *Service {
	return &Service{repo: repo, authz: authz, logger: logger, now: time.Now}
}

// SetNotifier wires ticket event delivery.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetAudit wires the audit trail.
func (s *Service) SetAudit(a *shared.AuditLogger) { s.audit = a }

// SetInvalidator wires dashboard cache invalidation.
func (s *Service) SetInvalidator(inv Invalidator) { s.inv = inv }

// Create files a new ticket for the requester. The response deadline is
// derived from the priority at filing time.
func (s *Service) Create(ctx context.Context, requesterID int64, req CreateRequest) (Ticket, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" {
		return Ticket{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.IsValid() {
		return Ticket{}, fmt.Errorf("%w: unknown priority %q", ErrInvalid, req.Priority)
	}
	now := s.now()
	ticket := Ticket{
		RefKey:       newRefKey(),
		Title:        req.Title,
		Body:         req.Body,
		Status:       StatusOpen,
		Priority:     req.Priority,
		RequesterID:  requesterID,
		DepartmentID: req.DepartmentID,
		SLADueAt:     now.Add(req.Priority.ResponseSLA()),
	}
	created, err := s.repo.Create(ctx, ticket)
	if err != nil {
		return Ticket{}, err
	}
	s.record(ctx, shared.AuditTicketCreate, created.ID)
	s.invalidate(ctx)
	return created, nil
}

// Get returns a ticket the viewer is allowed to see: holders of the
// view-all grant see everything, others only tickets they filed or work.
func (s *Service) Get(ctx context.Context, viewerID, id int64) (Ticket, error) {
	ticket, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if err := s.checkView(ctx, viewerID, ticket); err != nil {
		return Ticket{}, err
	}
	return ticket, nil
}

// GetByRef looks a ticket up by its reference key under the same scoping.
func (s *Service) GetByRef(ctx context.Context, viewerID int64, refKey string) (Ticket, error) {
	ticket, err := s.repo.GetByRef(ctx, strings.ToUpper(strings.TrimSpace(refKey)))
	if err != nil {
		return Ticket{}, err
	}
	if err := s.checkView(ctx, viewerID, ticket); err != nil {
		return Ticket{}, err
	}
	return ticket, nil
}

// List returns tickets the viewer may see. Without the view-all grant the
// listing collapses to the viewer's own tickets regardless of the filter.
func (s *Service) List(ctx context.Context, viewerID int64, filter ListFilter) ([]Ticket, shared.Pagination, error) {
	filter.Keyword = shared.NormalizeKeyword(filter.Keyword)
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}
	all, err := s.authz.Can(ctx, viewerID, shared.PermTicketsViewAll)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if !all {
		filter.RequesterID = &viewerID
	}
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Assign hands the ticket to a staff member. Assigning an open ticket
// starts work on it; the assignee is notified either way.
func (s *Service) Assign(ctx context.Context, id, assigneeID int64) (Ticket, error) {
	ticket, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if ticket.Status.Terminal() {
		return Ticket{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, ticket.RefKey, ticket.Status)
	}
	if _, err := s.repo.SetAssignee(ctx, id, assigneeID); err != nil {
		return Ticket{}, err
	}
	if ticket.Status == StatusOpen {
		if err := s.transition(ctx, ticket, StatusInProgress, nil); err != nil {
			return Ticket{}, err
		}
	}
	s.record(ctx, shared.AuditTicketAssign, id)
	s.notify(ctx, assigneeID, "ticket.assigned", "Ticket assigned to you",
		fmt.Sprintf("%s: %s", ticket.RefKey, ticket.Title), id)
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

// Start moves an open ticket into work without changing the assignee.
func (s *Service) Start(ctx context.Context, id int64) (Ticket, error) {
	return s.move(ctx, id, StatusInProgress, shared.AuditTicketStart, nil)
}

// Resolve marks the fix delivered and notifies the requester.
func (s *Service) Resolve(ctx context.Context, id int64) (Ticket, error) {
	ticket, err := s.move(ctx, id, StatusResolved, shared.AuditTicketResolve, map[string]any{"resolved_at": s.now()})
	if err != nil {
		return Ticket{}, err
	}
	s.notify(ctx, ticket.RequesterID, "ticket.resolved", "Your ticket was resolved",
		fmt.Sprintf("%s: %s", ticket.RefKey, ticket.Title), id)
	return ticket, nil
}

// Close confirms a resolved ticket as done. The requester may close their
// own ticket; the handler grants staff access via the close permission.
func (s *Service) Close(ctx context.Context, callerID, id int64) (Ticket, error) {
	ticket, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if ticket.RequesterID != callerID {
		allowed, err := s.authz.Can(ctx, callerID, shared.PermTicketsClose)
		if err != nil {
			return Ticket{}, err
		}
		if !allowed {
			return Ticket{}, ErrAccessDenied
		}
	}
	return s.move(ctx, id, StatusClosed, shared.AuditTicketClose, map[string]any{"closed_at": s.now()})
}

// Reopen sends a resolved ticket back to work when the fix did not hold.
func (s *Service) Reopen(ctx context.Context, id int64) (Ticket, error) {
	ticket, err := s.move(ctx, id, StatusInProgress, shared.AuditTicketReopen, map[string]any{"resolved_at": nil})
	if err != nil {
		return Ticket{}, err
	}
	if ticket.AssigneeID != nil {
		s.notify(ctx, *ticket.AssigneeID, "ticket.reopened", "Ticket reopened",
			fmt.Sprintf("%s: %s", ticket.RefKey, ticket.Title), id)
	}
	return ticket, nil
}

// Cancel withdraws a ticket before resolution. Requesters may cancel their
// own; staff access is granted at the route.
func (s *Service) Cancel(ctx context.Context, callerID, id int64) (Ticket, error) {
	ticket, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if ticket.RequesterID != callerID {
		allowed, err := s.authz.Can(ctx, callerID, shared.PermTicketsClose)
		if err != nil {
			return Ticket{}, err
		}
		if !allowed {
			return Ticket{}, ErrAccessDenied
		}
	}
	return s.move(ctx, id, StatusCancelled, shared.AuditTicketCancel, nil)
}

// Delete soft-deletes a ticket.
func (s *Service) Delete(ctx context.Context, id int64) error {
	affected, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.record(ctx, shared.AuditTicketDelete, id)
	s.invalidate(ctx)
	return nil
}

// AddComment appends to the thread of a ticket the author may see.
func (s *Service) AddComment(ctx context.Context, authorID, ticketID int64, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, fmt.Errorf("%w: comment body is required", ErrInvalid)
	}
	ticket, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return Comment{}, err
	}
	if err := s.checkView(ctx, authorID, ticket); err != nil {
		return Comment{}, err
	}
	comment, err := s.repo.AddComment(ctx, Comment{TicketID: ticketID, AuthorID: authorID, Body: body})
	if err != nil {
		return Comment{}, err
	}
	// Tell the other side of the conversation.
	if authorID != ticket.RequesterID {
		s.notify(ctx, ticket.RequesterID, "ticket.comment", "New comment on your ticket",
			fmt.Sprintf("%s: %s", ticket.RefKey, ticket.Title), ticketID)
	} else if ticket.AssigneeID != nil {
		s.notify(ctx, *ticket.AssigneeID, "ticket.comment", "New comment on assigned ticket",
			fmt.Sprintf("%s: %s", ticket.RefKey, ticket.Title), ticketID)
	}
	return comment, nil
}

// Comments returns the thread of a ticket the viewer may see.
func (s *Service) Comments(ctx context.Context, viewerID, ticketID int64) ([]Comment, error) {
	ticket, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.checkView(ctx, viewerID, ticket); err != nil {
		return nil, err
	}
	return s.repo.Comments(ctx, ticketID)
}

// ScanSLA flags tickets whose response window lapsed and notifies the
// people who can act on them. Invoked by the periodic worker task.
func (s *Service) ScanSLA(ctx context.Context, limit int) (int, error) {
	overdue, err := s.repo.OverdueUnbreached(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	for _, ticket := range overdue {
		if err := s.repo.MarkSLABreached(ctx, ticket.ID); err != nil {
			return 0, err
		}
		target := ticket.RequesterID
		if ticket.AssigneeID != nil {
			target = *ticket.AssigneeID
		}
		s.notify(ctx, target, "ticket.sla_breach", "Response deadline missed",
			fmt.Sprintf("%s: %s", ticket.RefKey, ticket.Title), ticket.ID)
	}
	return len(overdue), nil
}

// move performs a validated lifecycle transition and reloads the ticket.
func (s *Service) move(ctx context.Context, id int64, to Status, action string, updates map[string]any) (Ticket, error) {
	ticket, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if err := s.transition(ctx, ticket, to, updates); err != nil {
		return Ticket{}, err
	}
	s.record(ctx, action, id)
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

func (s *Service) transition(ctx context.Context, ticket Ticket, to Status, updates map[string]any) error {
	if !ticket.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ticket.Status, to)
	}
	affected, err := s.repo.UpdateStatus(ctx, ticket.ID, ticket.Status, to, updates)
	if err != nil {
		return err
	}
	if affected == 0 {
		// Lost a race with a concurrent transition.
		return fmt.Errorf("%w: ticket moved concurrently", ErrInvalidTransition)
	}
	return nil
}

func (s *Service) checkView(ctx context.Context, viewerID int64, ticket Ticket) error {
	if ticket.RequesterID == viewerID {
		return nil
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == viewerID {
		return nil
	}
	all, err := s.authz.Can(ctx, viewerID, shared.PermTicketsViewAll)
	if err != nil {
		return err
	}
	if !all {
		return ErrAccessDenied
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID int64, kind, title, body string, ticketID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.TicketEvent(ctx, userID, kind, title, body, ticketID); err != nil && s.logger != nil {
		s.logger.Warn("enqueue notification", slog.Any("error", err), slog.String("kind", kind))
	}
}

func (s *Service) record(ctx context.Context, action string, ticketID int64) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if identity := shared.IdentityFromContext(ctx); identity != nil {
		actorID = identity.UserID
	}
	entry := shared.AuditLog{ActorID: actorID, Action: action, Entity: "ticket", EntityID: strconv.FormatInt(ticketID, 10)}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err), slog.String("action", action))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.inv == nil {
		return
	}
	if err := s.inv.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("dashboard cache bump", slog.Any("error", err))
	}
}

// newRefKey builds the short human-facing reference, e.g. TK-3F2A9C01.
func newRefKey() string {
	return "TK-" + strings.ToUpper(uuid.NewString()[:8])
}
