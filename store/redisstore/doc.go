// Package redisstore keeps refresh tokens in Redis.
//
// Each token is a hash at <prefix>:t:<id>. A string key <prefix>:h:<hash>
// maps the token hash to its id, a set <prefix>:u:<user> indexes the tokens
// of a user, and the sorted set <prefix>:exp orders ids by expiry for the
// sweeper. Every status change is a Lua script, so the compare-and-set on
// the stored status and the writes it guards execute as one command.
//
// Timestamps are stored as Unix microseconds.
package redisstore
