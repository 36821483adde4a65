package tickets

import "time"

// Status represents the ticket lifecycle.
type Status string

const (
	StatusOpen       Status = "OPEN"        // Filed, waiting for triage
	StatusInProgress Status = "IN_PROGRESS" // Assigned, being worked
	StatusResolved   Status = "RESOLVED"    // Fix delivered, awaiting confirmation
	StatusClosed     Status = "CLOSED"      // Confirmed done
	StatusCancelled  Status = "CANCELLED"   // Withdrawn before resolution
)

// IsValid reports whether the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusResolved || next == StatusCancelled
	case StatusResolved:
		return next == StatusClosed || next == StatusInProgress
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Priority orders tickets for triage.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// IsValid reports whether the priority is known.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ResponseSLA is the first-response window granted for the priority.
func (p Priority) ResponseSLA() time.Duration {
	switch p {
	case PriorityUrgent:
		return 2 * time.Hour
	case PriorityHigh:
		return 8 * time.Hour
	case PriorityMedium:
		return 24 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// Ticket is a helpdesk request routed to a department and worked by staff.
type Ticket struct {
	ID           int64      `json:"id"`
	RefKey       string     `json:"ref_key"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	RequesterID  int64      `json:"requester_id"`
	AssigneeID   *int64     `json:"assignee_id,omitempty"`
	DepartmentID *int64     `json:"department_id,omitempty"`
	SLADueAt     time.Time  `json:"sla_due_at"`
	SLABreached  bool       `json:"sla_breached"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

// Comment is a message on a ticket's thread.
type Comment struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows ticket listings.
type ListFilter struct {
	Keyword      string
	Status       Status
	Priority     Priority
	DepartmentID *int64
	AssigneeID   *int64
	RequesterID  *int64
	Page         int
	PerPage      int
}
