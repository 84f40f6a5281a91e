// Package mem implements the credential store in process memory. It backs
// the API when no database DSN is configured and the unit tests.
package mem

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"authgate.org/internal/authz"
	"authgate.org/internal/ids"
)

// Store implements authz.Store. All sub-stores share one mutex.
type Store struct {
	mu          sync.Mutex
	users       map[string]*authz.User
	roles       map[string]*authz.Role
	permissions map[string]*authz.Permission
	userRoles   map[string]authz.UserRole
	rolePerms   map[string]authz.RolePermission
	usage       map[string]*int64
	now         func() time.Time
}

var _ authz.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:       make(map[string]*authz.User),
		roles:       make(map[string]*authz.Role),
		permissions: make(map[string]*authz.Permission),
		userRoles:   make(map[string]authz.UserRole),
		rolePerms:   make(map[string]authz.RolePermission),
		usage:       make(map[string]*int64),
		now:         time.Now,
	}
}

// SetClock overrides the time source (test use only).
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.now = fn
	}
}

func (s *Store) Users(context.Context) authz.UserStore             { return &userStore{s} }
func (s *Store) Roles(context.Context) authz.RoleStore             { return &roleStore{s} }
func (s *Store) Permissions(context.Context) authz.PermissionStore { return &permissionStore{s} }

func cloneUser(u *authz.User) *authz.User {
	cp := *u
	return &cp
}

func cloneRole(r *authz.Role) *authz.Role {
	cp := *r
	return &cp
}

// User store ---------------------------------------------------------------

type userStore struct{ s *Store }

func (st *userStore) Create(_ context.Context, u *authz.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, existing := range st.s.users {
		if existing.Email == u.Email {
			return authz.ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.NewHex()
	}
	if _, ok := st.s.users[u.ID]; ok {
		return authz.ErrAlreadyExists
	}
	now := st.s.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	st.s.users[u.ID] = cloneUser(u)
	return nil
}

func (st *userStore) Find(_ context.Context, id string) (*authz.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	u, ok := st.s.users[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return cloneUser(u), nil
}

func (st *userStore) FindByEmail(_ context.Context, email string) (*authz.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, u := range st.s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, authz.ErrNotFound
}

func (st *userStore) List(_ context.Context) ([]*authz.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	users := make([]*authz.User, 0, len(st.s.users))
	for _, u := range st.s.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (st *userStore) Update(_ context.Context, u *authz.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	existing, ok := st.s.users[u.ID]
	if !ok {
		return authz.ErrNotFound
	}
	for id, other := range st.s.users {
		if id != u.ID && other.Email == u.Email {
			return authz.ErrAlreadyExists
		}
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = st.s.now().UTC()
	st.s.users[u.ID] = cloneUser(u)
	return nil
}

func (st *userStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.users[id]; !ok {
		return authz.ErrNotFound
	}
	delete(st.s.users, id)
	for key, ur := range st.s.userRoles {
		if ur.UserID == id {
			delete(st.s.userRoles, key)
		}
	}
	return nil
}

// Role store ---------------------------------------------------------------

type roleStore struct{ s *Store }

func (st *roleStore) Create(_ context.Context, role *authz.Role) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, existing := range st.s.roles {
		if existing.Name == role.Name {
			return authz.ErrAlreadyExists
		}
	}
	if role.ID == "" {
		role.ID = ids.NewHex()
	}
	now := st.s.now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	st.s.roles[role.ID] = cloneRole(role)
	return nil
}

func (st *roleStore) Find(_ context.Context, id string) (*authz.Role, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	role, ok := st.s.roles[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return cloneRole(role), nil
}

func (st *roleStore) FindByName(_ context.Context, name string) (*authz.Role, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, role := range st.s.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, authz.ErrNotFound
}

func (st *roleStore) List(_ context.Context) ([]*authz.Role, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	roles := make([]*authz.Role, 0, len(st.s.roles))
	for _, role := range st.s.roles {
		roles = append(roles, cloneRole(role))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (st *roleStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.roles[id]; !ok {
		return authz.ErrNotFound
	}
	delete(st.s.roles, id)
	for key, ur := range st.s.userRoles {
		if ur.RoleID == id {
			delete(st.s.userRoles, key)
		}
	}
	for key, rp := range st.s.rolePerms {
		if rp.RoleID == id {
			delete(st.s.rolePerms, key)
		}
	}
	return nil
}

func (st *roleStore) Assign(_ context.Context, userID, roleID string) (authz.UserRole, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.users[userID]; !ok {
		return authz.UserRole{}, authz.ErrNotFound
	}
	if _, ok := st.s.roles[roleID]; !ok {
		return authz.UserRole{}, authz.ErrNotFound
	}
	for _, ur := range st.s.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			return ur, nil
		}
	}
	ur := authz.UserRole{
		ID:        ids.NewHex(),
		UserID:    userID,
		RoleID:    roleID,
		CreatedAt: st.s.now().UTC(),
	}
	st.s.userRoles[ur.ID] = ur
	return ur, nil
}

func (st *roleStore) Unassign(_ context.Context, userID, roleID string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for key, ur := range st.s.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			delete(st.s.userRoles, key)
			return nil
		}
	}
	return authz.ErrNotFound
}

func (st *roleStore) AssignmentsForUser(_ context.Context, userID string) ([]authz.UserRole, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var result []authz.UserRole
	for _, ur := range st.s.userRoles {
		if ur.UserID == userID {
			result = append(result, ur)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ s *Store }

func (st *permissionStore) Create(_ context.Context, p *authz.Permission) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, existing := range st.s.permissions {
		if existing.URLPattern == p.URLPattern && existing.Method == p.Method {
			return authz.ErrAlreadyExists
		}
	}
	if p.ID == "" {
		p.ID = ids.NewHex()
	}
	p.UsageCount = 0
	p.CreatedAt = st.s.now().UTC()
	cp := *p
	st.s.permissions[p.ID] = &cp
	st.s.usage[p.ID] = new(int64)
	return nil
}

func (st *permissionStore) snapshot(p *authz.Permission) *authz.Permission {
	cp := *p
	if counter, ok := st.s.usage[p.ID]; ok {
		cp.UsageCount = atomic.LoadInt64(counter)
	}
	return &cp
}

func (st *permissionStore) Find(_ context.Context, id string) (*authz.Permission, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	p, ok := st.s.permissions[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return st.snapshot(p), nil
}

func (st *permissionStore) FindByPattern(_ context.Context, urlPattern, method string) (*authz.Permission, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, p := range st.s.permissions {
		if p.URLPattern == urlPattern && p.Method == method {
			return st.snapshot(p), nil
		}
	}
	return nil, authz.ErrNotFound
}

func (st *permissionStore) List(_ context.Context) ([]*authz.Permission, error) {
	perms, err := st.all()
	if err != nil {
		return nil, err
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].URLPattern == perms[j].URLPattern {
			return perms[i].Method < perms[j].Method
		}
		return perms[i].URLPattern < perms[j].URLPattern
	})
	return perms, nil
}

func (st *permissionStore) ListByUsage(_ context.Context) ([]*authz.Permission, error) {
	perms, err := st.all()
	if err != nil {
		return nil, err
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].UsageCount == perms[j].UsageCount {
			if perms[i].URLPattern == perms[j].URLPattern {
				return perms[i].Method < perms[j].Method
			}
			return perms[i].URLPattern < perms[j].URLPattern
		}
		return perms[i].UsageCount > perms[j].UsageCount
	})
	return perms, nil
}

func (st *permissionStore) all() ([]*authz.Permission, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	perms := make([]*authz.Permission, 0, len(st.s.permissions))
	for _, p := range st.s.permissions {
		perms = append(perms, st.snapshot(p))
	}
	return perms, nil
}

func (st *permissionStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.permissions[id]; !ok {
		return authz.ErrNotFound
	}
	delete(st.s.permissions, id)
	delete(st.s.usage, id)
	for key, rp := range st.s.rolePerms {
		if rp.PermissionID == id {
			delete(st.s.rolePerms, key)
		}
	}
	return nil
}

func (st *permissionStore) Grant(_ context.Context, roleID, permissionID string) (authz.RolePermission, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.roles[roleID]; !ok {
		return authz.RolePermission{}, authz.ErrNotFound
	}
	if _, ok := st.s.permissions[permissionID]; !ok {
		return authz.RolePermission{}, authz.ErrNotFound
	}
	for _, rp := range st.s.rolePerms {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			return rp, nil
		}
	}
	rp := authz.RolePermission{
		ID:           ids.NewHex(),
		RoleID:       roleID,
		PermissionID: permissionID,
		CreatedAt:    st.s.now().UTC(),
	}
	st.s.rolePerms[rp.ID] = rp
	return rp, nil
}

func (st *permissionStore) Revoke(_ context.Context, roleID, permissionID string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for key, rp := range st.s.rolePerms {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			delete(st.s.rolePerms, key)
			return nil
		}
	}
	return authz.ErrNotFound
}

func (st *permissionStore) GrantExists(_ context.Context, roleID, permissionID string) (bool, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, rp := range st.s.rolePerms {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			return true, nil
		}
	}
	return false, nil
}

func (st *permissionStore) ForRole(_ context.Context, roleID string) ([]*authz.Permission, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var perms []*authz.Permission
	for _, rp := range st.s.rolePerms {
		if rp.RoleID != roleID {
			continue
		}
		if p, ok := st.s.permissions[rp.PermissionID]; ok {
			perms = append(perms, st.snapshot(p))
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].URLPattern == perms[j].URLPattern {
			return perms[i].Method < perms[j].Method
		}
		return perms[i].URLPattern < perms[j].URLPattern
	})
	return perms, nil
}

func (st *permissionStore) IncrementUsage(_ context.Context, permissionID string) error {
	st.s.mu.Lock()
	counter, ok := st.s.usage[permissionID]
	st.s.mu.Unlock()
	if !ok {
		return authz.ErrNotFound
	}
	atomic.AddInt64(counter, 1)
	return nil
}
