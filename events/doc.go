// Package events defines the domain event contract shared by the token and user
// aggregates and the post-commit [Bus] that fans events out to handlers.
//
// Aggregates record events with an embedded [Recorder]. Flows pull the recorded
// events once the unit of work has committed and hand them to [Bus.Publish].
//
// # What this package must NOT do
//
//   - Dispatch anything before the originating transaction commits.
//   - Import tokenguard or any store package.
package events
