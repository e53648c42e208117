// Package rate provides Redis-backed fixed-window counters used to throttle
// login and refresh attempts.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key suffixes
// under the configured prefix:
//   - l:u:  login per email
//   - l:ip: login per client IP
//   - r:d:  refresh per device id
//
// # What this package must NOT do
//
//   - Decide on credential validity. Callers report failures explicitly.
//   - Be imported outside the tokenguard module.
package rate
