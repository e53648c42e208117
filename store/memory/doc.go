// Package memory provides mutex-guarded, in-process implementations of the
// token, user and role repositories. They honour the same compare-and-set
// contracts as the Redis and Postgres stores and back the engine's tests and
// the server's no-database mode.
package memory
