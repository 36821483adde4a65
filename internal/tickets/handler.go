package tickets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/deskhive/deskhive/internal/platform/httpx"
	"github.com/deskhive/deskhive/internal/rbac"
	"github.com/deskhive/deskhive/internal/shared"
)

// Handler exposes the ticket workflow endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers ticket routes. Closing and cancelling stay open to
// every viewer because requesters may finish their own tickets; the service
// checks ownership for callers without the close grant.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermTicketsView, shared.PermTicketsViewAll))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/ref/{refKey}", h.getByRef)
		r.Get("/{id}/comments", h.listComments)
		r.Post("/{id}/comments", h.addComment)
		r.Put("/{id}/close", h.close)
		r.Put("/{id}/cancel", h.cancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermTicketsCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermTicketsAssign))
		r.Put("/{id}/assign", h.assign)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermTicketsProcess))
		r.Put("/{id}/start", h.start)
		r.Put("/{id}/resolve", h.resolve)
		r.Put("/{id}/reopen", h.reopen)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermTicketsDelete))
		r.Delete("/{id}", h.delete)
	})
}

type createTicketRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Body         string `json:"body" validate:"max=10000"`
	Priority     string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	DepartmentID *int64 `json:"department_id"`
}

type assignRequest struct {
	AssigneeID int64 `json:"assignee_id" validate:"required,gt=0"`
}

type commentRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	page, perPage := shared.PageFromRequest(r)
	query := r.URL.Query()
	filter := ListFilter{
		Keyword:  query.Get("keyword"),
		Status:   Status(query.Get("status")),
		Priority: Priority(query.Get("priority")),
		Page:     page,
		PerPage:  perPage,
	}
	if raw := query.Get("department_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Department Filter", "")
			return
		}
		filter.DepartmentID = &id
	}
	if raw := query.Get("assignee_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Assignee Filter", "")
			return
		}
		filter.AssigneeID = &id
	}
	list, pagination, err := h.service.List(r.Context(), identity.UserID, filter)
	if err != nil {
		h.fail(w, "list tickets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tickets": list, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ticket, err := h.service.Get(r.Context(), identity.UserID, id)
	if err != nil {
		h.fail(w, "get ticket", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) getByRef(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	ticket, err := h.service.GetByRef(r.Context(), identity.UserID, chi.URLParam(r, "refKey"))
	if err != nil {
		h.fail(w, "get ticket by ref", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	var req createTicketRequest
	if !h.decode(w, r, &req) {
		return
	}
	ticket, err := h.service.Create(r.Context(), identity.UserID, CreateRequest{
		Title:        req.Title,
		Body:         req.Body,
		Priority:     Priority(req.Priority),
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		h.fail(w, "create ticket", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ticket)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	ticket, err := h.service.Assign(r.Context(), id, req.AssigneeID)
	if err != nil {
		h.fail(w, "assign ticket", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "start ticket", func(id int64) (Ticket, error) {
		return h.service.Start(r.Context(), id)
	})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "resolve ticket", func(id int64) (Ticket, error) {
		return h.service.Resolve(r.Context(), id)
	})
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "reopen ticket", func(id int64) (Ticket, error) {
		return h.service.Reopen(r.Context(), id)
	})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	h.lifecycle(w, r, "close ticket", func(id int64) (Ticket, error) {
		return h.service.Close(r.Context(), identity.UserID, id)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	h.lifecycle(w, r, "cancel ticket", func(id int64) (Ticket, error) {
		return h.service.Cancel(r.Context(), identity.UserID, id)
	})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op string, fn func(id int64) (Ticket, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ticket, err := fn(id)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete ticket", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	comments, err := h.service.Comments(r.Context(), identity.UserID, id)
	if err != nil {
		h.fail(w, "list comments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !h.decode(w, r, &req) {
		return
	}
	comment, err := h.service.AddComment(r.Context(), identity.UserID, id, req.Body)
	if err != nil {
		h.fail(w, "add comment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAccessDenied):
		httpx.Problem(w, http.StatusForbidden, "Insufficient Privilege", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrInvalid):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
