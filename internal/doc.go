// Package internal holds packages private to the tokenguard module.
//
// # Sub-packages
//
//   - audit: security audit records and a buffered dispatcher
//   - config: server configuration (YAML, .env and environment overrides)
//   - flows: orchestration for every Engine operation
//   - logging: slog construction for the server binary
//   - rate: Redis fixed-window throttles for login and refresh
//   - sweeper: periodic removal of expired refresh tokens
package internal
