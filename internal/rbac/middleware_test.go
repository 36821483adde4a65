package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/internal/shared"
)

// brokenRepo simulates a storage outage on the read path.
type brokenRepo struct {
	*memoryRepo
}

func (r brokenRepo) UserEffectivePermissions(context.Context, int64) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (r brokenRepo) RoleCodesForUser(context.Context, int64) ([]string, error) {
	return nil, errors.New("connection refused")
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusNoContent)
	})
}

func identityRequest(userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	ctx := shared.ContextWithIdentity(req.Context(), &shared.Identity{UserID: userID, Username: "tester", BaseRole: "USER"})
	return req.WithContext(ctx)
}

func TestGateRejectsMissingIdentity(t *testing.T) {
	svc, _ := fixture(t)
	guard := Middleware{Service: svc}

	var hit bool
	handler := guard.RequireAny("ticket.assign")(okHandler(&hit))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tickets", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, hit)
}

func TestGateAdmitsHolder(t *testing.T) {
	svc, _ := fixture(t)
	guard := Middleware{Service: svc}

	var hit bool
	handler := guard.RequireAll("ticket.assign", "ticket.close")(okHandler(&hit))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(1))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, hit)
}

func TestGateRejectsInsufficientPrivilege(t *testing.T) {
	svc, _ := fixture(t)
	guard := Middleware{Service: svc}

	var hit bool
	handler := guard.RequireAll("ticket.assign", "ticket.delete")(okHandler(&hit))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(1))

	// 403, not 401: the caller is known, just not privileged.
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, hit)
}

func TestGateFailsClosedOnStoreError(t *testing.T) {
	svc := NewService(brokenRepo{newMemoryRepo()}, nil, nil)
	guard := Middleware{Service: svc}

	var hit bool
	handler := guard.RequireAny("ticket.assign")(okHandler(&hit))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(1))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.False(t, hit)

	handler = guard.RequireRoles(LogicAny, "ADMIN")(okHandler(&hit))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(1))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.False(t, hit)
}

func TestGateEmptyExpressionPassesThrough(t *testing.T) {
	svc, _ := fixture(t)
	guard := Middleware{Service: svc}

	// An empty expression declares no restriction; even an anonymous request
	// flows through to the handler.
	var hit bool
	handler := guard.RequirePermissions(LogicAll)(okHandler(&hit))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tickets", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, hit)
}

func TestGateRoleExpression(t *testing.T) {
	svc, _ := fixture(t)
	guard := Middleware{Service: svc}

	var hit bool
	handler := guard.RequireRoles(LogicAny, "DEPT_MANAGER")(okHandler(&hit))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(1))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, hit)
}
