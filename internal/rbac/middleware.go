package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/deskhive/deskhive/internal/observability"
	"github.com/deskhive/deskhive/internal/platform/httpx"
	"github.com/deskhive/deskhive/internal/shared"
)

// Middleware is the request-time enforcement point. Each protected route
// declares its required expression as ordinary configuration where the route
// is registered; a single generic gate evaluates it against the identity the
// authentication middleware resolved. Every rejection is terminal for the
// request: identity failures demand re-authentication, authorization
// failures a privilege change.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

type checkFunc func(ctx context.Context, userID int64, logic Logic, required ...string) (bool, error)

// RequirePermissions admits the request only when the caller's effective
// permission set satisfies the codes under the given combinator.
func (m Middleware) RequirePermissions(logic Logic, codes ...string) func(http.Handler) http.Handler {
	return m.gate(logic, codes, m.Service.CheckPermissions)
}

// RequireRoles admits the request only when the caller's directly-held role
// codes satisfy the expression.
func (m Middleware) RequireRoles(logic Logic, codes ...string) func(http.Handler) http.Handler {
	return m.gate(logic, codes, m.Service.CheckRoles)
}

// RequireAny is shorthand for an OR permission expression.
func (m Middleware) RequireAny(codes ...string) func(http.Handler) http.Handler {
	return m.RequirePermissions(LogicAny, codes...)
}

// RequireAll is shorthand for an AND permission expression.
func (m Middleware) RequireAll(codes ...string) func(http.Handler) http.Handler {
	return m.RequirePermissions(LogicAll, codes...)
}

func (m Middleware) gate(logic Logic, codes []string, check checkFunc) func(http.Handler) http.Handler {
	normalized := normalizeCodes(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				// No resolved identity: the authentication middleware was
				// skipped or failed open. Fail closed.
				m.record("rejected")
				httpx.Problem(w, http.StatusUnauthorized, "Authentication Required", "")
				return
			}
			allowed, err := check(r.Context(), identity.UserID, logic, normalized...)
			if err != nil {
				// A store failure is never an implicit grant.
				m.record("error")
				if m.Logger != nil {
					m.Logger.Error("authorization check", slog.Any("error", err), slog.Int64("user_id", identity.UserID))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed {
				m.record("rejected")
				httpx.Problem(w, http.StatusForbidden, "Insufficient Privilege", "")
				return
			}
			m.record("admitted")
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) record(outcome string) {
	if m.Metrics != nil {
		m.Metrics.RecordAuthzDecision(outcome)
	}
}
