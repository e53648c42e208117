package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/user"
)

// RolesFailureKind classifies role assignment failures.
type RolesFailureKind int

const (
	RolesFailureNone RolesFailureKind = iota
	RolesFailureInvalidActor
	RolesFailureUserNotFound
	RolesFailureRolesNotFound
	RolesFailureStore
)

const maxRoleAttempts = 3

// RolesResult reports the role set before and after the call.
type RolesResult struct {
	Failure    RolesFailureKind
	Err        error
	Changed    bool
	OldRoleIDs []user.RoleID
	NewRoleIDs []user.RoleID
	Events     []events.Event
}

// RolesDeps captures role assignment dependencies.
type RolesDeps struct {
	Now   func() time.Time
	Users user.Repository
	Roles user.RoleRepository
	Tx    TxRunner
}

// RunSetRoles replaces the role set of userID. The roles-changed event is
// returned only when the set actually changed and the write committed.
func RunSetRoles(ctx context.Context, userID string, roleIDs []user.RoleID, actorName string, deps RolesDeps) RolesResult {
	actor, err := user.ParseActor(actorName)
	if err != nil {
		return RolesResult{Failure: RolesFailureInvalidActor, Err: err}
	}
	if userID == "" {
		return RolesResult{Failure: RolesFailureUserNotFound, Err: user.ErrNotFound}
	}

	wanted := user.NormalizeRoleIDs(roleIDs)

	var res RolesResult
	err = deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		for attempt := 1; ; attempt++ {
			err := setRolesOnce(ctx, userID, wanted, actor, deps, &res)
			if !errors.Is(err, user.ErrStaleRoles) || attempt >= maxRoleAttempts {
				return err
			}
		}
	})
	if err != nil {
		return RolesResult{Failure: RolesFailureStore, Err: err}
	}
	return res
}

// setRolesOnce reads the user, diffs and writes. SaveRoles is conditional on
// the set read here, so a concurrent change surfaces as ErrStaleRoles.
func setRolesOnce(ctx context.Context, userID string, wanted []user.RoleID, actor user.Actor, deps RolesDeps, res *RolesResult) error {
	*res = RolesResult{}

	u, err := deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			res.Failure = RolesFailureUserNotFound
			res.Err = err
			return nil
		}
		return err
	}

	roles := []user.Role{}
	if len(wanted) > 0 {
		roles, err = deps.Roles.GetByIDs(ctx, wanted)
		if err != nil {
			return err
		}
	}
	if len(roles) != len(wanted) {
		res.Failure = RolesFailureRolesNotFound
		res.Err = user.ErrRolesNotFound
		return nil
	}

	res.OldRoleIDs = user.NormalizeRoleIDs(u.Roles)
	changed, err := u.SetRoles(roles, actor, deps.Now())
	if err != nil {
		return err
	}
	res.Changed = changed
	res.NewRoleIDs = user.NormalizeRoleIDs(u.Roles)
	if !changed {
		return nil
	}
	if err := deps.Users.SaveRoles(ctx, u, res.OldRoleIDs); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			*res = RolesResult{Failure: RolesFailureUserNotFound, Err: err}
			return nil
		}
		return err
	}
	res.Events = u.PullEvents()
	return nil
}
