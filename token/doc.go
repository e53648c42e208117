// Package token implements the refresh token aggregate: its status machine,
// the raw/hash generator, the events it records and the repository port that
// stores must satisfy.
//
// A RefreshToken only ever leaves Active. Rotation creates a new token
// instance; it never reopens the old one.
package token
