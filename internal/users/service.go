package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/deskhive/deskhive/internal/shared"
)

// Service handles user administration.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of users and pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]User, shared.Pagination, error) {
	filter.Keyword = shared.NormalizeKeyword(filter.Keyword)
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// UpdateProfile changes a user's email and display name.
func (s *Service) UpdateProfile(ctx context.Context, id int64, email, displayName string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	displayName = strings.TrimSpace(displayName)
	if email == "" || displayName == "" {
		return fmt.Errorf("%w: email and display name are required", ErrInvalid)
	}
	affected, err := s.repo.UpdateProfile(ctx, User{ID: id, Email: email, DisplayName: displayName})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.record(ctx, shared.AuditUserUpdateProfile, id)
	return nil
}

// SetActive enables or disables an account. A disabled account keeps its
// roles but can no longer authenticate.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	affected, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	if active {
		s.record(ctx, shared.AuditUserEnable, id)
	} else {
		s.record(ctx, shared.AuditUserDisable, id)
	}
	return nil
}

// SetDepartment reassigns a user's department; nil clears it.
func (s *Service) SetDepartment(ctx context.Context, id int64, departmentID *int64) error {
	affected, err := s.repo.SetDepartment(ctx, id, departmentID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.record(ctx, shared.AuditUserSetDepartment, id)
	return nil
}

// Delete soft-deletes an account. Existing tokens for the account stop
// resolving at the next authenticated request.
func (s *Service) Delete(ctx context.Context, id int64) error {
	affected, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.record(ctx, shared.AuditUserDelete, id)
	return nil
}

func (s *Service) record(ctx context.Context, action string, targetID int64) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if identity := shared.IdentityFromContext(ctx); identity != nil {
		actorID = identity.UserID
	}
	entry := shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: strconv.FormatInt(targetID, 10)}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err), slog.String("action", action))
	}
}
