package departments

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskhive/deskhive/internal/shared"
)

// Service handles department business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a department. Codes are stored uppercase and names are
// title-cased for display.
func (s *Service) Create(ctx context.Context, name, code string, managerID *int64) (Department, error) {
	name = shared.TitleCase(name)
	code = strings.ToUpper(strings.TrimSpace(code))
	if name == "" || code == "" {
		return Department{}, fmt.Errorf("%w: name and code are required", ErrInvalid)
	}
	return s.repo.Create(ctx, Department{Name: name, Code: code, ManagerID: managerID})
}

// Update modifies a department's profile.
func (s *Service) Update(ctx context.Context, dept Department) error {
	dept.Name = shared.TitleCase(dept.Name)
	dept.Code = strings.ToUpper(strings.TrimSpace(dept.Code))
	if dept.Name == "" || dept.Code == "" {
		return fmt.Errorf("%w: name and code are required", ErrInvalid)
	}
	affected, err := s.repo.Update(ctx, dept)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes a department.
func (s *Service) Delete(ctx context.Context, id int64) error {
	affected, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one department.
func (s *Service) Get(ctx context.Context, id int64) (Department, error) {
	return s.repo.Get(ctx, id)
}

// List returns departments matching the keyword.
func (s *Service) List(ctx context.Context, keyword string) ([]Department, error) {
	return s.repo.List(ctx, shared.NormalizeKeyword(keyword))
}
