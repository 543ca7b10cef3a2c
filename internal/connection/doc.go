// Package connection implements the connection handle.
//
// A Handle owns one gateway session:
//   - Tracks the connection state machine with atomic transitions
//   - Guards Start so only one stream runs at a time
//   - Translates transport result codes into typed errors
//   - Makes Stop idempotent and bounded by a timeout
package connection
