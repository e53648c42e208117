package user

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// RoleID identifies a role. Roles are reference data.
type RoleID int64

// Role groups permission codes.
type Role struct {
	ID          RoleID
	Name        string
	Permissions []string
}

// Actor is who requested a role change.
type Actor uint8

const (
	ActorSelf Actor = iota + 1
	ActorAdministrator
	ActorSystem
)

// ErrInvalidActor is returned by ParseActor for unknown values.
var ErrInvalidActor = errors.New("invalid actor")

func (a Actor) String() string {
	switch a {
	case ActorSelf:
		return "self"
	case ActorAdministrator:
		return "administrator"
	case ActorSystem:
		return "system"
	default:
		return fmt.Sprintf("actor(%d)", uint8(a))
	}
}

// Valid reports whether a is one of the known actors.
func (a Actor) Valid() bool {
	return a >= ActorSelf && a <= ActorSystem
}

// ParseActor accepts the names produced by String, case-insensitively.
func ParseActor(v string) (Actor, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "self":
		return ActorSelf, nil
	case "administrator", "admin":
		return ActorAdministrator, nil
	case "system":
		return ActorSystem, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidActor, v)
}

// NormalizeRoleIDs returns ids sorted ascending without duplicates.
func NormalizeRoleIDs(ids []RoleID) []RoleID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// DistinctPermissions returns the sorted union of the permission codes of roles.
func DistinctPermissions(roles []Role) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range roles {
		for _, p := range r.Permissions {
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}
