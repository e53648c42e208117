package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/MrEthical07/tokenguard/user"
)

// UserStore is an in-memory user.Repository and user.RoleRepository.
type UserStore struct {
	mu      sync.RWMutex
	users   map[string]*user.User
	byEmail map[string]string
	roles   map[user.RoleID]user.Role
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[string]*user.User),
		byEmail: make(map[string]string),
		roles:   make(map[user.RoleID]user.Role),
	}
}

// AddUser stores u. The email must be unused.
func (s *UserStore) AddUser(u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := u.Email.String()
	if _, taken := s.byEmail[key]; taken {
		return user.ErrEmailTaken
	}
	s.users[u.ID] = u.Clone()
	s.byEmail[key] = u.ID
	return nil
}

// AddRole stores role reference data.
func (s *UserStore) AddRole(r user.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Permissions = slices.Clone(r.Permissions)
	s.roles[r.ID] = r
}

func (s *UserStore) GetByID(_ context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *UserStore) GetByEmail(_ context.Context, email user.Email) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email.String()]
	if !ok {
		return nil, user.ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *UserStore) SaveRoles(_ context.Context, u *user.User, previous []user.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return user.ErrNotFound
	}
	if !slices.Equal(user.NormalizeRoleIDs(cur.Roles), user.NormalizeRoleIDs(previous)) {
		return user.ErrStaleRoles
	}
	cur.Roles = user.NormalizeRoleIDs(u.Roles)
	return nil
}

func (s *UserStore) GetByIDs(_ context.Context, ids []user.RoleID) ([]user.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]user.Role, 0, len(ids))
	for _, id := range user.NormalizeRoleIDs(ids) {
		if r, ok := s.roles[id]; ok {
			r.Permissions = slices.Clone(r.Permissions)
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *UserStore) PermissionsForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, user.ErrNotFound
	}
	roles := make([]user.Role, 0, len(u.Roles))
	for _, id := range u.Roles {
		if r, ok := s.roles[id]; ok {
			roles = append(roles, r)
		}
	}
	return user.DistinctPermissions(roles), nil
}

// CreateUser is the context-aware form of AddUser used by seeding code.
func (s *UserStore) CreateUser(_ context.Context, u *user.User) error {
	return s.AddUser(u)
}

// UpsertRole is the context-aware form of AddRole used by seeding code.
func (s *UserStore) UpsertRole(_ context.Context, r user.Role) error {
	s.AddRole(r)
	return nil
}
