package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/deskhive/deskhive/internal/shared"
)

const tokenIssuer = "deskhive"

// claims carries the identity embedded in a credential token.
type claims struct {
	Username string `json:"username"`
	BaseRole string `json:"base_role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 signed credential tokens.
// Verification is stateless: there is no server-side revocation list, and a
// token stays valid until its original expiry even after a replacement has
// been issued.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager constructs a TokenManager with the given signing secret
// and validity window.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL exposes the configured token validity window.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue mints a signed token for the given identity, valid for the full
// configured window from now.
func (m *TokenManager) Issue(userID int64, username, baseRole string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: username,
		BaseRole: baseRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry of a token and extracts the embedded
// identity. Any failure (missing, malformed, expired, signature mismatch)
// surfaces as shared.ErrTokenInvalid.
func (m *TokenManager) Verify(raw string) (*shared.Identity, time.Time, error) {
	if raw == "" {
		return nil, time.Time{}, shared.ErrTokenInvalid
	}
	var parsed claims
	token, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, time.Time{}, shared.ErrTokenInvalid
	}
	userID, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil {
		return nil, time.Time{}, shared.ErrTokenInvalid
	}
	identity := &shared.Identity{
		UserID:   userID,
		Username: parsed.Username,
		BaseRole: parsed.BaseRole,
	}
	var expiresAt time.Time
	if parsed.ExpiresAt != nil {
		expiresAt = parsed.ExpiresAt.Time
	}
	return identity, expiresAt, nil
}

// ShouldRefresh reports whether a valid token is inside the sliding refresh
// window: less than half the validity window remaining. The refresh is
// opportunistic, not a security boundary.
func (m *TokenManager) ShouldRefresh(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	remaining := expiresAt.Sub(m.now())
	return remaining > 0 && remaining < m.ttl/2
}
