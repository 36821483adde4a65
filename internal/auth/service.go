package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/deskhive/deskhive/internal/shared"
)

// RoleDirectory resolves role facts the auth flow needs from the RBAC store.
type RoleDirectory interface {
	// BaseRoleForUser returns the coarse tier (ADMIN, DEPT or USER) embedded
	// in issued tokens.
	BaseRoleForUser(ctx context.Context, userID int64) (string, error)
	// AssignRoleByCode grants a role to a user, used for the registration
	// default.
	AssignRoleByCode(ctx context.Context, userID int64, roleCode string) error
}

// DefaultRoleCode is granted to every newly registered account.
const DefaultRoleCode = "USER"

// RegisterInput carries the fields required to create an account.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	roles  RoleDirectory
	tokens *TokenManager
}

// NewService constructs a new Service.
func NewService(repo Repository, roles RoleDirectory, tokens *TokenManager) *Service {
	return &Service{repo: repo, roles: roles, tokens: tokens}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and mints a fresh credential token.
func (s *Service) Login(ctx context.Context, username, password string) (*User, string, time.Time, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	baseRole, err := s.roles.BaseRoleForUser(ctx, user.ID)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("resolve base role: %w", err)
	}
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username, baseRole)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.repo.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, expiresAt, nil
}

// Register creates a new enabled account with the default role.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	username := strings.TrimSpace(input.Username)
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := User{
		Username:     username,
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(input.DisplayName),
		IsActive:     true,
	}
	id, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id
	if err := s.roles.AssignRoleByCode(ctx, id, DefaultRoleCode); err != nil {
		return nil, fmt.Errorf("assign default role: %w", err)
	}
	return &user, nil
}

// CurrentUser loads the account backing a resolved identity.
func (s *Service) CurrentUser(ctx context.Context, identity *shared.Identity) (*User, error) {
	if identity == nil {
		return nil, shared.ErrTokenInvalid
	}
	return s.repo.FindByID(ctx, identity.UserID)
}
