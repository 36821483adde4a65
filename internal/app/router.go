package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authpkg "github.com/deskhive/deskhive/internal/auth"
	"github.com/deskhive/deskhive/internal/dashboard"
	"github.com/deskhive/deskhive/internal/departments"
	"github.com/deskhive/deskhive/internal/notifications"
	"github.com/deskhive/deskhive/internal/observability"
	"github.com/deskhive/deskhive/internal/presence"
	"github.com/deskhive/deskhive/internal/rbac"
	"github.com/deskhive/deskhive/internal/tickets"
	"github.com/deskhive/deskhive/internal/users"
	"github.com/deskhive/deskhive/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	AuthHandler          *authpkg.Handler
	AuthMiddleware       authpkg.Middleware
	RBACHandler          *rbac.Handler
	UsersHandler         *users.Handler
	DepartmentsHandler   *departments.Handler
	TicketsHandler       *tickets.Handler
	NotificationsHandler *notifications.Handler
	PresenceHandler      *presence.Handler
	DashboardHandler     *dashboard.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything under the authenticated
// group sees a resolved identity in the request context; the per-module
// route declarations add the permission expressions on top.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)

		params.AuthHandler.MountProtectedRoutes(r)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/departments", params.DepartmentsHandler.MountRoutes)
		r.Route("/tickets", params.TicketsHandler.MountRoutes)
		r.Route("/notifications", params.NotificationsHandler.MountRoutes)
		r.Route("/presence", params.PresenceHandler.MountRoutes)
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		r.Route("/admin", params.RBACHandler.MountRoutes)
	})

	return r
}
