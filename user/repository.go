package user

import "context"

// Repository persists users. Email uniqueness is enforced here, not in the
// aggregate.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email Email) (*User, error)
	// SaveRoles writes u.Roles only if the stored set still equals
	// previous, and returns ErrStaleRoles otherwise.
	SaveRoles(ctx context.Context, u *User, previous []RoleID) error
}

// RoleRepository reads role reference data.
type RoleRepository interface {
	// GetByIDs returns the roles that exist among ids. Callers compare
	// lengths to detect unknown ids.
	GetByIDs(ctx context.Context, ids []RoleID) ([]Role, error)
	// PermissionsForUser returns the distinct permission codes across every
	// role assigned to userID.
	PermissionsForUser(ctx context.Context, userID string) ([]string, error)
}
