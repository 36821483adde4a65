package tickets

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/internal/shared"
)

type memoryRepo struct {
	tickets       map[int64]*Ticket
	comments      []Comment
	nextID        int64
	nextCommentID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tickets: make(map[int64]*Ticket)}
}

func (r *memoryRepo) Create(_ context.Context, ticket Ticket) (Ticket, error) {
	r.nextID++
	ticket.ID = r.nextID
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = &ticket
	return ticket, nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Ticket, error) {
	if ticket, ok := r.tickets[id]; ok && ticket.DeletedAt == nil {
		return *ticket, nil
	}
	return Ticket{}, ErrNotFound
}

func (r *memoryRepo) GetByRef(_ context.Context, refKey string) (Ticket, error) {
	for _, ticket := range r.tickets {
		if ticket.RefKey == refKey && ticket.DeletedAt == nil {
			return *ticket, nil
		}
	}
	return Ticket{}, ErrNotFound
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Ticket, int, error) {
	var out []Ticket
	for _, ticket := range r.tickets {
		if ticket.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && ticket.Status != filter.Status {
			continue
		}
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		out = append(out, *ticket)
	}
	return out, len(out), nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id int64, from, to Status, updates map[string]any) (int64, error) {
	ticket, ok := r.tickets[id]
	if !ok || ticket.DeletedAt != nil || ticket.Status != from {
		return 0, nil
	}
	ticket.Status = to
	for column, value := range updates {
		switch column {
		case "resolved_at":
			if value == nil {
				ticket.ResolvedAt = nil
			} else {
				at := value.(time.Time)
				ticket.ResolvedAt = &at
			}
		case "closed_at":
			at := value.(time.Time)
			ticket.ClosedAt = &at
		}
	}
	return 1, nil
}

func (r *memoryRepo) SetAssignee(_ context.Context, id int64, assigneeID int64) (int64, error) {
	ticket, ok := r.tickets[id]
	if !ok || ticket.DeletedAt != nil {
		return 0, nil
	}
	ticket.AssigneeID = &assigneeID
	return 1, nil
}

func (r *memoryRepo) SoftDelete(_ context.Context, id int64) (int64, error) {
	ticket, ok := r.tickets[id]
	if !ok || ticket.DeletedAt != nil {
		return 0, nil
	}
	now := time.Now()
	ticket.DeletedAt = &now
	return 1, nil
}

func (r *memoryRepo) AddComment(_ context.Context, comment Comment) (Comment, error) {
	r.nextCommentID++
	comment.ID = r.nextCommentID
	comment.CreatedAt = time.Now()
	r.comments = append(r.comments, comment)
	return comment, nil
}

func (r *memoryRepo) Comments(_ context.Context, ticketID int64) ([]Comment, error) {
	var out []Comment
	for _, c := range r.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryRepo) OverdueUnbreached(_ context.Context, now time.Time, limit int) ([]Ticket, error) {
	var out []Ticket
	for _, ticket := range r.tickets {
		if ticket.DeletedAt != nil || ticket.SLABreached {
			continue
		}
		if ticket.Status != StatusOpen && ticket.Status != StatusInProgress {
			continue
		}
		if ticket.SLADueAt.Before(now) {
			out = append(out, *ticket)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkSLABreached(_ context.Context, id int64) error {
	if ticket, ok := r.tickets[id]; ok {
		ticket.SLABreached = true
	}
	return nil
}

// stubAuthz grants listed permissions per user.
type stubAuthz struct {
	grants map[int64][]string
}

func (a stubAuthz) Can(_ context.Context, userID int64, permission string) (bool, error) {
	for _, code := range a.grants[userID] {
		if code == permission {
			return true, nil
		}
	}
	return false, nil
}

// recordingNotifier captures enqueued events.
type recordingNotifier struct {
	events []string
	users  []int64
}

func (n *recordingNotifier) TicketEvent(_ context.Context, userID int64, kind, _, _ string, _ int64) error {
	n.events = append(n.events, kind)
	n.users = append(n.users, userID)
	return nil
}

const (
	requester = int64(10)
	agent     = int64(20)
	stranger  = int64(30)
	manager   = int64(40)
)

func ticketFixture(t *testing.T) (*Service, *memoryRepo, *recordingNotifier) {
	t.Helper()
	repo := newMemoryRepo()
	authz := stubAuthz{grants: map[int64][]string{
		agent:   {shared.PermTicketsViewAll},
		manager: {shared.PermTicketsViewAll, shared.PermTicketsClose},
	}}
	svc := NewService(repo, authz, nil)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	return svc, repo, notifier
}

func file(t *testing.T, svc *Service, priority Priority) Ticket {
	t.Helper()
	ticket, err := svc.Create(context.Background(), requester, CreateRequest{
		Title: "Printer on fire", Body: "Third floor", Priority: priority,
	})
	require.NoError(t, err)
	return ticket
}

func TestCreateDefaultsAndRefKey(t *testing.T) {
	svc, _, _ := ticketFixture(t)
	ticket, err := svc.Create(context.Background(), requester, CreateRequest{Title: " VPN down "})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, ticket.Status)
	require.Equal(t, PriorityMedium, ticket.Priority)
	require.Equal(t, "VPN down", ticket.Title)
	require.True(t, strings.HasPrefix(ticket.RefKey, "TK-"))
	require.Len(t, ticket.RefKey, 11)

	_, err = svc.Create(context.Background(), requester, CreateRequest{Title: ""})
	require.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Create(context.Background(), requester, CreateRequest{Title: "x", Priority: "WHENEVER"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestSLADeadlineFollowsPriority(t *testing.T) {
	svc, _, _ := ticketFixture(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	urgent := file(t, svc, PriorityUrgent)
	require.Equal(t, base.Add(2*time.Hour), urgent.SLADueAt)

	low := file(t, svc, PriorityLow)
	require.Equal(t, base.Add(72*time.Hour), low.SLADueAt)
}

func TestLifecycleHappyPath(t *testing.T) {
	svc, _, notifier := ticketFixture(t)
	ticket := file(t, svc, PriorityHigh)

	assigned, err := svc.Assign(context.Background(), ticket.ID, agent)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, assigned.Status)
	require.Equal(t, agent, *assigned.AssigneeID)
	require.Contains(t, notifier.events, "ticket.assigned")

	resolved, err := svc.Resolve(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.Contains(t, notifier.events, "ticket.resolved")
	require.Contains(t, notifier.users, requester)

	closed, err := svc.Close(context.Background(), requester, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
}

func TestInvalidTransitions(t *testing.T) {
	svc, _, _ := ticketFixture(t)
	ticket := file(t, svc, PriorityMedium)

	// An open ticket cannot be resolved before any work starts.
	_, err := svc.Resolve(context.Background(), ticket.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Nor closed.
	_, err = svc.Close(context.Background(), requester, ticket.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Start(context.Background(), ticket.ID)
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), ticket.ID)
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), requester, ticket.ID)
	require.NoError(t, err)

	// Closed is terminal.
	_, err = svc.Start(context.Background(), ticket.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Assign(context.Background(), ticket.ID, agent)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReopenClearsResolution(t *testing.T) {
	svc, _, notifier := ticketFixture(t)
	ticket := file(t, svc, PriorityMedium)

	_, err := svc.Assign(context.Background(), ticket.ID, agent)
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), ticket.ID)
	require.NoError(t, err)

	reopened, err := svc.Reopen(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, reopened.Status)
	require.Nil(t, reopened.ResolvedAt)
	require.Contains(t, notifier.events, "ticket.reopened")
}

func TestCloseRequiresOwnershipOrGrant(t *testing.T) {
	svc, _, _ := ticketFixture(t)
	ticket := file(t, svc, PriorityMedium)
	_, err := svc.Assign(context.Background(), ticket.ID, agent)
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), ticket.ID)
	require.NoError(t, err)

	// A third party without the close grant is refused.
	_, err = svc.Close(context.Background(), stranger, ticket.ID)
	require.ErrorIs(t, err, ErrAccessDenied)

	// A holder of the close grant may finish any ticket.
	_, err = svc.Close(context.Background(), manager, ticket.ID)
	require.NoError(t, err)
}

func TestViewScoping(t *testing.T) {
	svc, _, _ := ticketFixture(t)
	ticket := file(t, svc, PriorityMedium)

	// Requester sees their own ticket.
	_, err := svc.Get(context.Background(), requester, ticket.ID)
	require.NoError(t, err)

	// A stranger without view-all does not.
	_, err = svc.Get(context.Background(), stranger, ticket.ID)
	require.ErrorIs(t, err, ErrAccessDenied)

	// View-all holders see everything.
	_, err = svc.Get(context.Background(), agent, ticket.ID)
	require.NoError(t, err)

	// Listings collapse to own tickets without view-all.
	list, _, err := svc.List(context.Background(), stranger, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, list)

	list, _, err = svc.List(context.Background(), agent, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCommentsNotifyTheOtherSide(t *testing.T) {
	svc, _, notifier := ticketFixture(t)
	ticket := file(t, svc, PriorityMedium)
	_, err := svc.Assign(context.Background(), ticket.ID, agent)
	require.NoError(t, err)
	notifier.events = nil
	notifier.users = nil

	// Agent comments: requester is notified.
	_, err = svc.AddComment(context.Background(), agent, ticket.ID, "Looking into it")
	require.NoError(t, err)
	require.Equal(t, []int64{requester}, notifier.users)

	// Requester replies: assignee is notified.
	_, err = svc.AddComment(context.Background(), requester, ticket.ID, "Thanks")
	require.NoError(t, err)
	require.Equal(t, []int64{requester, agent}, notifier.users)

	comments, err := svc.Comments(context.Background(), requester, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	_, err = svc.AddComment(context.Background(), stranger, ticket.ID, "nosy")
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestDeleteIdempotence(t *testing.T) {
	svc, _, _ := ticketFixture(t)
	ticket := file(t, svc, PriorityMedium)

	require.NoError(t, svc.Delete(context.Background(), ticket.ID))
	require.ErrorIs(t, svc.Delete(context.Background(), ticket.ID), ErrNotFound)
	_, err := svc.Get(context.Background(), requester, ticket.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScanSLAFlagsAndNotifies(t *testing.T) {
	svc, repo, notifier := ticketFixture(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	ticket := file(t, svc, PriorityUrgent)
	_, err := svc.Assign(context.Background(), ticket.ID, agent)
	require.NoError(t, err)
	notifier.events = nil

	// Before the deadline nothing is flagged.
	svc.now = func() time.Time { return base.Add(time.Hour) }
	flagged, err := svc.ScanSLA(context.Background(), 100)
	require.NoError(t, err)
	require.Zero(t, flagged)

	svc.now = func() time.Time { return base.Add(3 * time.Hour) }
	flagged, err = svc.ScanSLA(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, flagged)
	require.Equal(t, []string{"ticket.sla_breach"}, notifier.events)
	require.True(t, repo.tickets[ticket.ID].SLABreached)

	// Already-flagged tickets are not re-reported.
	flagged, err = svc.ScanSLA(context.Background(), 100)
	require.NoError(t, err)
	require.Zero(t, flagged)
}
