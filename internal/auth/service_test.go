package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/deskhive/deskhive/internal/shared"
)

type memoryAuthRepo struct {
	users  map[string]*User
	nextID int64
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{users: make(map[string]*User)}
}

func (r *memoryAuthRepo) FindByUsername(_ context.Context, username string) (*User, error) {
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryAuthRepo) FindByID(_ context.Context, id int64) (*User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryAuthRepo) CreateUser(_ context.Context, u User) (int64, error) {
	if _, ok := r.users[u.Username]; ok {
		return 0, ErrDuplicateUser
	}
	r.nextID++
	u.ID = r.nextID
	r.users[u.Username] = &u
	return u.ID, nil
}

func (r *memoryAuthRepo) TouchLastLogin(context.Context, int64, time.Time) error {
	return nil
}

type stubRoleDirectory struct {
	baseRole string
	assigned map[int64][]string
}

func (d *stubRoleDirectory) BaseRoleForUser(context.Context, int64) (string, error) {
	if d.baseRole == "" {
		return "USER", nil
	}
	return d.baseRole, nil
}

func (d *stubRoleDirectory) AssignRoleByCode(_ context.Context, userID int64, code string) error {
	if d.assigned == nil {
		d.assigned = make(map[int64][]string)
	}
	d.assigned[userID] = append(d.assigned[userID], code)
	return nil
}

func seedUser(t *testing.T, repo *memoryAuthRepo, username, password string, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = repo.CreateUser(context.Background(), User{
		Username:     username,
		Email:        username + "@deskhive.local",
		PasswordHash: string(hash),
		IsActive:     active,
	})
	require.NoError(t, err)
	return repo.users[username]
}

func TestAuthenticate(t *testing.T) {
	repo := newMemoryAuthRepo()
	roles := &stubRoleDirectory{}
	svc := NewService(repo, roles, newTestManager(t, time.Hour))
	seedUser(t, repo, "alice", "correct-horse", true)
	seedUser(t, repo, "frozen", "correct-horse", false)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Disabled accounts cannot authenticate even with valid credentials.
	_, err = svc.Authenticate(ctx, "frozen", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginMintsToken(t *testing.T) {
	repo := newMemoryAuthRepo()
	roles := &stubRoleDirectory{baseRole: "DEPT"}
	tokens := newTestManager(t, time.Hour)
	svc := NewService(repo, roles, tokens)
	seedUser(t, repo, "bob", "super-secret-pass", true)

	user, token, expiresAt, err := svc.Login(context.Background(), "bob", "super-secret-pass")
	require.NoError(t, err)
	require.Equal(t, "bob", user.Username)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	identity, _, err := tokens.Verify(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, identity.UserID)
	require.Equal(t, "DEPT", identity.BaseRole)
}

func TestRegisterGrantsDefaultRole(t *testing.T) {
	repo := newMemoryAuthRepo()
	roles := &stubRoleDirectory{}
	svc := NewService(repo, roles, newTestManager(t, time.Hour))

	user, err := svc.Register(context.Background(), RegisterInput{
		Username:    "carol",
		Email:       "carol@deskhive.local",
		Password:    "pass-word-123",
		DisplayName: "Carol",
	})
	require.NoError(t, err)
	require.Equal(t, []string{DefaultRoleCode}, roles.assigned[user.ID])

	_, err = svc.Register(context.Background(), RegisterInput{
		Username:    "carol",
		Email:       "carol2@deskhive.local",
		Password:    "pass-word-123",
		DisplayName: "Carol Again",
	})
	require.ErrorIs(t, err, ErrDuplicateUser)
}
