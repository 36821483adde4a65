package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/deskhive/deskhive/internal/platform/httpx"
	"github.com/deskhive/deskhive/internal/shared"
)

// Middleware resolves the caller identity from the credential token before
// business logic runs. A request that fails resolution is rejected with 401
// and never reaches an authorization check or handler.
type Middleware struct {
	Tokens *TokenManager
	Header string
	Logger *slog.Logger
}

// Authenticate verifies the token carried by the request, stores the
// resolved identity in the request context and opportunistically issues a
// replacement token in the response when the original is inside the refresh
// window. The old token remains valid until its original expiry.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := m.extractToken(r)
		identity, expiresAt, err := m.Tokens.Verify(raw)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Authentication Required", "credential token missing, invalid or expired")
			return
		}
		if m.Tokens.ShouldRefresh(expiresAt) {
			refreshed, _, err := m.Tokens.Issue(identity.UserID, identity.Username, identity.BaseRole)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Warn("token refresh", slog.Any("error", err))
				}
			} else {
				w.Header().Set(m.headerName(), refreshed)
			}
		}
		ctx := shared.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) headerName() string {
	if m.Header != "" {
		return m.Header
	}
	return "X-Auth-Token"
}

// extractToken reads the configured token header, accepting a bare token or
// a Bearer prefix, with the Authorization header as fallback.
func (m Middleware) extractToken(r *http.Request) string {
	for _, header := range []string{m.headerName(), "Authorization"} {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}
		if parts := strings.SplitN(value, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return value
	}
	return ""
}
