package user

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/MrEthical07/tokenguard/events"
)

var (
	// ErrNotFound is returned by repositories when the user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrRolesNotFound is returned when requested role ids do not all resolve.
	ErrRolesNotFound = errors.New("one or more roles not found")
	// ErrEmailTaken is returned by stores when the email unique constraint fires.
	ErrEmailTaken = errors.New("email already registered")
	// ErrStaleRoles is returned by SaveRoles when the stored role set no
	// longer matches the one the caller read.
	ErrStaleRoles = errors.New("role set changed concurrently")
)

// User is the aggregate root for an account and its role assignment.
type User struct {
	ID           string
	Email        Email
	Username     Username
	PasswordHash string
	Roles        []RoleID
	Deleted      bool
	DeletedAt    *time.Time

	events.Recorder
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u != nil && !u.Deleted
}

// HasRole reports whether id is assigned.
func (u *User) HasRole(id RoleID) bool {
	return slices.Contains(u.Roles, id)
}

// SetRoles replaces the whole role set. It returns false and records nothing
// when the new set equals the current one regardless of order.
func (u *User) SetRoles(newRoles []Role, actor Actor, now time.Time) (bool, error) {
	if !actor.Valid() {
		return false, fmt.Errorf("%w: %s", ErrInvalidActor, actor)
	}

	ids := make([]RoleID, 0, len(newRoles))
	for _, r := range newRoles {
		ids = append(ids, r.ID)
	}
	next := NormalizeRoleIDs(ids)
	current := NormalizeRoleIDs(u.Roles)

	if slices.Equal(current, next) {
		return false, nil
	}

	u.Roles = next
	u.Record(RolesChanged{
		UserID:     u.ID,
		OldRoleIDs: current,
		NewRoleIDs: slices.Clone(next),
		Actor:      actor,
		At:         now,
	})
	return true, nil
}

// SoftDelete marks the account deleted.
func (u *User) SoftDelete(now time.Time) {
	if u.Deleted {
		return
	}
	at := now
	u.Deleted = true
	u.DeletedAt = &at
}

// LogValue keeps the password hash out of structured logs.
func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("username", u.Username.String()),
		slog.Bool("deleted", u.Deleted),
	)
}

// String omits the password hash.
func (u *User) String() string {
	if u == nil {
		return "<nil>"
	}
	return fmt.Sprintf("User{ID:%s Username:%s Roles:%v Deleted:%t}", u.ID, u.Username, u.Roles, u.Deleted)
}

// Clone copies u without pending events.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := &User{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Roles:        slices.Clone(u.Roles),
		Deleted:      u.Deleted,
	}
	if u.DeletedAt != nil {
		at := *u.DeletedAt
		out.DeletedAt = &at
	}
	return out
}
