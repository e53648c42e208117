package user

import "time"

// EventRolesChanged is the bus name of [RolesChanged].
const EventRolesChanged = "user.roles_changed"

// RolesChanged is recorded when SetRoles alters the role set.
type RolesChanged struct {
	UserID     string
	OldRoleIDs []RoleID
	NewRoleIDs []RoleID
	Actor      Actor
	At         time.Time
}

func (RolesChanged) EventName() string       { return EventRolesChanged }
func (e RolesChanged) OccurredAt() time.Time { return e.At }
