package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deskhive/deskhive/internal/shared"
)

// PermissionLookup resolves the role and permission codes a user holds.
// The repository satisfies it directly; wrap it with Cache at the call site
// when read-heavy lookups should be served from Redis.
type PermissionLookup interface {
	UserEffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	RoleCodesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Invalidator discards derived lookup state after an administrative write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service is the authorization engine: it decides whether a user satisfies a
// required permission or role expression, and hosts the administrative
// operations over the role/permission stores.
type Service struct {
	repo   RepositoryPort
	lookup PermissionLookup
	inv    Invalidator
	logger *slog.Logger
}

// NewService constructs the engine. lookup may be nil, in which case checks
// read straight from the repository.
func NewService(repo RepositoryPort, lookup PermissionLookup, logger *slog.Logger) *Service {
	if lookup == nil {
		lookup = repo
	}
	return &Service{repo: repo, lookup: lookup, logger: logger}
}

// SetInvalidator wires the cache invalidation hook fired after writes.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.inv = inv
}

// CheckPermissions reports whether the user's effective permission set
// satisfies the required codes under the given combinator. An empty required
// set means "no restriction" and is trivially satisfied. Evaluation
// re-resolves from the store on every call; an error always means "deny" at
// the enforcement point, never an implicit grant.
func (s *Service) CheckPermissions(ctx context.Context, userID int64, logic Logic, required ...string) (bool, error) {
	normalized := normalizeCodes(required)
	if len(normalized) == 0 {
		return true, nil
	}
	granted, err := s.lookup.UserEffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return evaluate(granted, normalized, logic), nil
}

// CheckRoles is CheckPermissions against the user's directly-held role codes,
// with no permission indirection.
func (s *Service) CheckRoles(ctx context.Context, userID int64, logic Logic, required ...string) (bool, error) {
	normalized := normalizeCodes(required)
	if len(normalized) == 0 {
		return true, nil
	}
	held, err := s.lookup.RoleCodesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return evaluate(held, normalized, logic), nil
}

// EffectivePermissions returns the deduplicated permission codes a user
// holds through every active role.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.lookup.UserEffectivePermissions(ctx, userID)
}

// RoleCodesForUser returns the codes of the active roles held by a user.
func (s *Service) RoleCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	return s.lookup.RoleCodesForUser(ctx, userID)
}

// BaseRoleForUser resolves the coarse tier for token claims: the highest
// tier among the user's active roles, defaulting to USER for users with no
// role at all.
func (s *Service) BaseRoleForUser(ctx context.Context, userID int64) (string, error) {
	bases, err := s.repo.BaseRolesForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	best := BaseRoleUser
	for _, b := range bases {
		switch b {
		case BaseRoleAdmin:
			return string(BaseRoleAdmin), nil
		case BaseRoleDept:
			best = BaseRoleDept
		}
	}
	return string(best), nil
}

// CreateRole inserts a new role. Role codes are unique among non-deleted
// roles.
func (s *Service) CreateRole(ctx context.Context, name, code string, baseRole BaseRole) (Role, error) {
	name = strings.TrimSpace(name)
	code = strings.ToUpper(strings.TrimSpace(code))
	if name == "" || code == "" {
		return Role{}, fmt.Errorf("%w: role name and code required", ErrInvalid)
	}
	if !baseRole.Valid() {
		return Role{}, fmt.Errorf("%w: unknown base role", ErrInvalid)
	}
	role, err := s.repo.CreateRole(ctx, Role{Name: name, Code: code, BaseRole: baseRole, IsActive: true})
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return role, nil
}

// UpdateRole updates an existing role. A zero affected-row count from the
// store means the id does not exist or is already deleted.
func (s *Service) UpdateRole(ctx context.Context, role Role) error {
	role.Name = strings.TrimSpace(role.Name)
	role.Code = strings.ToUpper(strings.TrimSpace(role.Code))
	if role.Name == "" || role.Code == "" {
		return fmt.Errorf("%w: role name and code required", ErrInvalid)
	}
	if !role.BaseRole.Valid() {
		return fmt.Errorf("%w: unknown base role", ErrInvalid)
	}
	affected, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx)
	return nil
}

// DeleteRole soft-deletes a role; its permissions disappear from every
// holder's effective set on the next evaluation.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	affected, err := s.repo.SoftDeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx)
	return nil
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns active roles filtered by an optional keyword.
func (s *Service) ListRoles(ctx context.Context, keyword string) ([]Role, error) {
	return s.repo.ListRoles(ctx, shared.NormalizeKeyword(keyword))
}

// CreatePermission inserts a new permission.
func (s *Service) CreatePermission(ctx context.Context, name, code string, sortOrder int32) (Permission, error) {
	name = strings.TrimSpace(name)
	code = strings.ToLower(strings.TrimSpace(code))
	if name == "" || code == "" {
		return Permission{}, fmt.Errorf("%w: permission name and code required", ErrInvalid)
	}
	perm, err := s.repo.CreatePermission(ctx, Permission{Name: name, Code: code, SortOrder: sortOrder})
	if err != nil {
		return Permission{}, err
	}
	s.invalidate(ctx)
	return perm, nil
}

// UpdatePermission updates an existing permission.
func (s *Service) UpdatePermission(ctx context.Context, perm Permission) error {
	perm.Name = strings.TrimSpace(perm.Name)
	perm.Code = strings.ToLower(strings.TrimSpace(perm.Code))
	if perm.Name == "" || perm.Code == "" {
		return fmt.Errorf("%w: permission name and code required", ErrInvalid)
	}
	affected, err := s.repo.UpdatePermission(ctx, perm)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx)
	return nil
}

// DeletePermission soft-deletes a permission. Deleting an already-deleted id
// reports ErrNotFound because the store affects zero rows.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	affected, err := s.repo.SoftDeletePermission(ctx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx)
	return nil
}

// ListPermissions returns active permissions filtered by an optional keyword.
func (s *Service) ListPermissions(ctx context.Context, keyword string) ([]Permission, error) {
	return s.repo.ListPermissions(ctx, shared.NormalizeKeyword(keyword))
}

// RolePermissions returns the active permissions granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.RolePermissions(ctx, roleID)
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// AssignRoleByCode grants a role identified by its code.
func (s *Service) AssignRoleByCode(ctx context.Context, userID int64, roleCode string) error {
	role, err := s.repo.GetRoleByCode(ctx, strings.ToUpper(strings.TrimSpace(roleCode)))
	if err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, role.ID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RemoveRole revokes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.inv == nil {
		return
	}
	if err := s.inv.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("rbac cache bump", slog.Any("error", err))
	}
}

func normalizeCodes(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		unique[c] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for c := range unique {
		normalized = append(normalized, c)
	}
	return normalized
}

// evaluate tests the normalized required codes against the held set.
// LogicAll requires every code present; LogicAny at least one. A user with
// an empty held set fails every non-empty check.
func evaluate(held []string, required []string, logic Logic) bool {
	set := make(map[string]struct{}, len(held))
	for _, h := range held {
		set[strings.ToLower(h)] = struct{}{}
	}
	switch logic {
	case LogicAny:
		for _, code := range required {
			if _, ok := set[code]; ok {
				return true
			}
		}
		return false
	default:
		// LogicAll is the fail-closed default for unknown combinators.
		for _, code := range required {
			if _, ok := set[code]; !ok {
				return false
			}
		}
		return true
	}
}
