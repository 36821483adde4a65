package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/internal/shared"
	_ "github.com/deskhive/deskhive/testing"
)

func authProbe(captured **shared.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = shared.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	m := Middleware{Tokens: newTestManager(t, time.Hour)}
	var identity *shared.Identity

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	m.Authenticate(authProbe(&identity)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Nil(t, identity)
}

func TestAuthenticateRejectsBadSignature(t *testing.T) {
	tokens := newTestManager(t, time.Hour)
	forged, _, err := NewTokenManager("different-secret", time.Hour).Issue(9, "mallory", "USER")
	require.NoError(t, err)

	m := Middleware{Tokens: tokens}
	var identity *shared.Identity
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	req.Header.Set("X-Auth-Token", forged)
	m.Authenticate(authProbe(&identity)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Nil(t, identity)
}

func TestAuthenticateResolvesIdentity(t *testing.T) {
	tokens := newTestManager(t, time.Hour)
	token, _, err := tokens.Issue(42, "admin", "ADMIN")
	require.NoError(t, err)

	m := Middleware{Tokens: tokens}
	var identity *shared.Identity
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	m.Authenticate(authProbe(&identity)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, identity)
	require.Equal(t, int64(42), identity.UserID)
	require.Equal(t, "admin", identity.Username)
	// Fresh token, no refresh issued.
	require.Empty(t, rec.Header().Get("X-Auth-Token"))
}

func TestAuthenticateSlidingRefresh(t *testing.T) {
	tokens := newTestManager(t, time.Hour)
	base := time.Now()

	// Issue a token that has already consumed most of its window.
	tokens.now = func() time.Time { return base.Add(-50 * time.Minute) }
	token, _, err := tokens.Issue(7, "agent", "DEPT")
	require.NoError(t, err)
	tokens.now = func() time.Time { return base }

	m := Middleware{Tokens: tokens, Header: "X-Auth-Token"}
	var identity *shared.Identity
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	req.Header.Set("X-Auth-Token", token)
	m.Authenticate(authProbe(&identity)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, identity)

	refreshed := rec.Header().Get("X-Auth-Token")
	require.NotEmpty(t, refreshed)
	require.NotEqual(t, token, refreshed)

	// The replacement is valid for a full window from the refresh instant
	// and carries the same identity.
	got, expiresAt, err := tokens.Verify(refreshed)
	require.NoError(t, err)
	require.Equal(t, identity.UserID, got.UserID)
	require.Equal(t, base.Add(time.Hour).Unix(), expiresAt.Unix())

	// The original token stays valid until its own expiry.
	_, _, err = tokens.Verify(token)
	require.NoError(t, err)
}
