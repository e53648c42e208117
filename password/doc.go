// Package password verifies and produces password hashes for the login flow.
//
// [Argon2] produces argon2id PHC strings and is the hasher new credentials are
// written with. [Bcrypt] verifies legacy bcrypt hashes. [Chain] picks the
// verifier matching a stored hash's prefix so both formats can coexist during
// a migration.
//
// # What this package must NOT do
//
//   - Log or return password material in errors.
//   - Normalize password bytes (they are hashed exactly as provided).
package password
