// Package user holds the User aggregate, its validated value objects and the
// role assignment rules that emit RolesChanged events.
package user
