package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/internal/auth"
)

// memoryRepo is an in-memory RepositoryPort used by engine tests.
type memoryRepo struct {
	roles       map[int64]*Role
	permissions map[int64]*Permission
	rolePerms   map[int64]map[int64]struct{}
	userRoles   map[int64]map[int64]struct{}
	nextRoleID  int64
	nextPermID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:       make(map[int64]*Role),
		permissions: make(map[int64]*Permission),
		rolePerms:   make(map[int64]map[int64]struct{}),
		userRoles:   make(map[int64]map[int64]struct{}),
	}
}

func (r *memoryRepo) CreateRole(_ context.Context, role Role) (Role, error) {
	for _, existing := range r.roles {
		if existing.Code == role.Code && existing.DeletedAt == nil {
			return Role{}, ErrDuplicateCode
		}
	}
	r.nextRoleID++
	role.ID = r.nextRoleID
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	r.roles[role.ID] = &role
	return role, nil
}

func (r *memoryRepo) UpdateRole(_ context.Context, role Role) (int64, error) {
	existing, ok := r.roles[role.ID]
	if !ok || existing.DeletedAt != nil {
		return 0, nil
	}
	existing.Name = role.Name
	existing.Code = role.Code
	existing.BaseRole = role.BaseRole
	existing.IsActive = role.IsActive
	return 1, nil
}

func (r *memoryRepo) SoftDeleteRole(_ context.Context, id int64) (int64, error) {
	existing, ok := r.roles[id]
	if !ok || existing.DeletedAt != nil {
		return 0, nil
	}
	now := time.Now()
	existing.DeletedAt = &now
	return 1, nil
}

func (r *memoryRepo) GetRole(_ context.Context, id int64) (Role, error) {
	if role, ok := r.roles[id]; ok && role.DeletedAt == nil {
		return *role, nil
	}
	return Role{}, ErrNotFound
}

func (r *memoryRepo) GetRoleByCode(_ context.Context, code string) (Role, error) {
	for _, role := range r.roles {
		if role.Code == code && role.DeletedAt == nil {
			return *role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (r *memoryRepo) ListRoles(context.Context, string) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		if role.DeletedAt == nil {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreatePermission(_ context.Context, perm Permission) (Permission, error) {
	for _, existing := range r.permissions {
		if existing.Code == perm.Code && existing.DeletedAt == nil {
			return Permission{}, ErrDuplicateCode
		}
	}
	r.nextPermID++
	perm.ID = r.nextPermID
	perm.CreatedAt = time.Now()
	r.permissions[perm.ID] = &perm
	return perm, nil
}

func (r *memoryRepo) UpdatePermission(_ context.Context, perm Permission) (int64, error) {
	existing, ok := r.permissions[perm.ID]
	if !ok || existing.DeletedAt != nil {
		return 0, nil
	}
	existing.Name = perm.Name
	existing.Code = perm.Code
	existing.SortOrder = perm.SortOrder
	return 1, nil
}

func (r *memoryRepo) SoftDeletePermission(_ context.Context, id int64) (int64, error) {
	existing, ok := r.permissions[id]
	if !ok || existing.DeletedAt != nil {
		return 0, nil
	}
	now := time.Now()
	existing.DeletedAt = &now
	return 1, nil
}

func (r *memoryRepo) ListPermissions(context.Context, string) ([]Permission, error) {
	var out []Permission
	for _, perm := range r.permissions {
		if perm.DeletedAt == nil {
			out = append(out, *perm)
		}
	}
	return out, nil
}

func (r *memoryRepo) RolePermissions(_ context.Context, roleID int64) ([]Permission, error) {
	role, ok := r.roles[roleID]
	if !ok || role.DeletedAt != nil {
		return nil, nil
	}
	var out []Permission
	for permID := range r.rolePerms[roleID] {
		if perm, ok := r.permissions[permID]; ok && perm.DeletedAt == nil {
			out = append(out, *perm)
		}
	}
	return out, nil
}

func (r *memoryRepo) ReplaceRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
	r.rolePerms[roleID] = set
	return nil
}

func (r *memoryRepo) AssignRole(_ context.Context, userID, roleID int64) error {
	if r.userRoles[userID] == nil {
		r.userRoles[userID] = make(map[int64]struct{})
	}
	r.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (r *memoryRepo) RemoveRole(_ context.Context, userID, roleID int64) error {
	delete(r.userRoles[userID], roleID)
	return nil
}

func (r *memoryRepo) RoleCodesForUser(_ context.Context, userID int64) ([]string, error) {
	var codes []string
	for roleID := range r.userRoles[userID] {
		if role, ok := r.roles[roleID]; ok && role.DeletedAt == nil && role.IsActive {
			codes = append(codes, role.Code)
		}
	}
	return codes, nil
}

func (r *memoryRepo) BaseRolesForUser(_ context.Context, userID int64) ([]BaseRole, error) {
	var bases []BaseRole
	for roleID := range r.userRoles[userID] {
		if role, ok := r.roles[roleID]; ok && role.DeletedAt == nil && role.IsActive {
			bases = append(bases, role.BaseRole)
		}
	}
	return bases, nil
}

func (r *memoryRepo) UserEffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	seen := make(map[string]struct{})
	var codes []string
	for roleID := range r.userRoles[userID] {
		role, ok := r.roles[roleID]
		if !ok || role.DeletedAt != nil || !role.IsActive {
			continue
		}
		for permID := range r.rolePerms[roleID] {
			perm, ok := r.permissions[permID]
			if !ok || perm.DeletedAt != nil {
				continue
			}
			if _, dup := seen[perm.Code]; dup {
				continue
			}
			seen[perm.Code] = struct{}{}
			codes = append(codes, perm.Code)
		}
	}
	return codes, nil
}

var _ RepositoryPort = (*memoryRepo)(nil)

// fixture builds the DEPT_MANAGER scenario: user 1 holds a role granting
// ticket.assign and ticket.close.
func fixture(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "Department Manager", "DEPT_MANAGER", BaseRoleDept)
	require.NoError(t, err)
	assign, err := svc.CreatePermission(ctx, "Assign tickets", "ticket.assign", 1)
	require.NoError(t, err)
	closePerm, err := svc.CreatePermission(ctx, "Close tickets", "ticket.close", 2)
	require.NoError(t, err)
	require.NoError(t, svc.SetRolePermissions(ctx, role.ID, []int64{assign.ID, closePerm.ID}))
	require.NoError(t, svc.AssignRole(ctx, 1, role.ID))
	return svc, repo
}

func TestCheckPermissionsAndOr(t *testing.T) {
	svc, _ := fixture(t)
	ctx := context.Background()

	ok, err := svc.CheckPermissions(ctx, 1, LogicAny, "ticket.assign")
	require.NoError(t, err)
	require.True(t, ok)

	// AND fails when any required code is missing.
	ok, err = svc.CheckPermissions(ctx, 1, LogicAll, "ticket.assign", "ticket.delete")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CheckPermissions(ctx, 1, LogicAll, "ticket.assign", "ticket.close")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CheckPermissions(ctx, 1, LogicAny, "ticket.delete", "user.edit")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckPermissionsEmptyRequiredSetAllows(t *testing.T) {
	svc, _ := fixture(t)

	// No restriction declared means the check trivially passes, even for a
	// user with no roles at all.
	ok, err := svc.CheckPermissions(context.Background(), 99, LogicAll)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CheckRoles(context.Background(), 99, LogicAny)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckPermissionsUserWithoutRolesFailsClosed(t *testing.T) {
	svc, _ := fixture(t)
	ctx := context.Background()

	ok, err := svc.CheckPermissions(ctx, 99, LogicAny, "ticket.assign")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CheckRoles(ctx, 99, LogicAll, "DEPT_MANAGER")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckRoles(t *testing.T) {
	svc, _ := fixture(t)
	ctx := context.Background()

	ok, err := svc.CheckRoles(ctx, 1, LogicAny, "DEPT_MANAGER", "ADMIN")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CheckRoles(ctx, 1, LogicAll, "DEPT_MANAGER", "ADMIN")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSoftDeletedRoleGrantsNothing(t *testing.T) {
	svc, repo := fixture(t)
	ctx := context.Background()

	var roleID int64
	for id := range repo.roles {
		roleID = id
	}
	require.NoError(t, svc.DeleteRole(ctx, roleID))

	// The association rows still exist, but the deleted role grants nothing
	// on the next evaluation.
	ok, err := svc.CheckPermissions(ctx, 1, LogicAny, "ticket.assign")
	require.NoError(t, err)
	require.False(t, ok)

	codes, err := svc.RoleCodesForUser(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, codes)
}

func TestSoftDeletedPermissionDropsFromEffectiveSet(t *testing.T) {
	svc, repo := fixture(t)
	ctx := context.Background()

	var assignID int64
	for id, perm := range repo.permissions {
		if perm.Code == "ticket.assign" {
			assignID = id
		}
	}
	require.NoError(t, svc.DeletePermission(ctx, assignID))

	ok, err := svc.CheckPermissions(ctx, 1, LogicAny, "ticket.assign")
	require.NoError(t, err)
	require.False(t, ok)

	// The sibling permission survives.
	ok, err = svc.CheckPermissions(ctx, 1, LogicAny, "ticket.close")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeleteIdempotence(t *testing.T) {
	svc, repo := fixture(t)
	ctx := context.Background()

	var permID int64
	for id := range repo.permissions {
		permID = id
	}
	require.NoError(t, svc.DeletePermission(ctx, permID))

	// The second delete affects zero rows and surfaces as not-found, not as
	// a storage error.
	err := svc.DeletePermission(ctx, permID)
	require.ErrorIs(t, err, ErrNotFound)

	err = svc.UpdatePermission(ctx, Permission{ID: permID, Name: "x", Code: "x.y"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateRoleCode(t *testing.T) {
	svc, _ := fixture(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "Another", "DEPT_MANAGER", BaseRoleDept)
	require.ErrorIs(t, err, ErrDuplicateCode)

	// Soft-deleting the holder frees the code for reuse.
	role, err := svc.GetRole(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	_, err = svc.CreateRole(ctx, "Another", "DEPT_MANAGER", BaseRoleDept)
	require.NoError(t, err)
}

func TestBaseRoleForUser(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// No roles held: default tier.
	base, err := svc.BaseRoleForUser(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "USER", base)

	dept, err := svc.CreateRole(ctx, "Dept", "DEPT_LEAD", BaseRoleDept)
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 5, dept.ID))
	base, err = svc.BaseRoleForUser(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "DEPT", base)

	admin, err := svc.CreateRole(ctx, "Admin", "SYS_ADMIN", BaseRoleAdmin)
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 5, admin.ID))
	base, err = svc.BaseRoleForUser(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "ADMIN", base)
}

func TestMultiRoleUnion(t *testing.T) {
	svc, _ := fixture(t)
	ctx := context.Background()

	viewer, err := svc.CreateRole(ctx, "Viewer", "VIEWER", BaseRoleUser)
	require.NoError(t, err)
	view, err := svc.CreatePermission(ctx, "View tickets", "ticket.view", 3)
	require.NoError(t, err)
	require.NoError(t, svc.SetRolePermissions(ctx, viewer.ID, []int64{view.ID}))
	require.NoError(t, svc.AssignRole(ctx, 1, viewer.ID))

	// Effective set is the union across both held roles.
	ok, err := svc.CheckPermissions(ctx, 1, LogicAll, "ticket.view", "ticket.assign", "ticket.close")
	require.NoError(t, err)
	require.True(t, ok)
}

// TestDefaultRoleInCatalog pins the shipped role catalog to the code the
// registration flow grants: a catalog without it would break every new
// account at the AssignRoleByCode step.
func TestDefaultRoleInCatalog(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	catalog := []struct {
		name string
		code string
		base BaseRole
	}{
		{"Administrator", "ADMIN", BaseRoleAdmin},
		{"Department Manager", "DEPT_MANAGER", BaseRoleDept},
		{"Support Agent", "AGENT", BaseRoleDept},
		{"Employee", auth.DefaultRoleCode, BaseRoleUser},
	}
	for _, entry := range catalog {
		role, err := svc.CreateRole(ctx, entry.name, entry.code, entry.base)
		require.NoError(t, err)
		if entry.code == auth.DefaultRoleCode {
			view, err := svc.CreatePermission(ctx, "View tickets", "ticket.view", 1)
			require.NoError(t, err)
			require.NoError(t, svc.SetRolePermissions(ctx, role.ID, []int64{view.ID}))
		}
	}

	const newAccount int64 = 7
	require.NoError(t, svc.AssignRoleByCode(ctx, newAccount, auth.DefaultRoleCode))

	ok, err := svc.CheckPermissions(ctx, newAccount, LogicAll, "ticket.view")
	require.NoError(t, err)
	require.True(t, ok)

	base, err := svc.BaseRoleForUser(ctx, newAccount)
	require.NoError(t, err)
	require.Equal(t, "USER", base)
}
