// Package audit turns security-relevant engine events into audit records
// and relays them to a [Sink] through a buffered [Dispatcher].
//
// The dispatcher subscribes to the engine's event bus as a handler, so a
// slow sink never delays Login or Refresh. When the buffer is full, records
// are either dropped and counted or the publisher blocks, depending on
// [Config.DropIfFull].
//
// Records carry user, token and device identifiers only. Token hashes and
// raw tokens never reach this package.
package audit
