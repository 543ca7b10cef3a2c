// Package gateway defines the transport boundary to the live gateway.
//
// A Session is one authenticated gateway connection:
//   - Subscribe variants register interest and are remembered for Resubscribe
//   - StartEx blocks while records, metadata and errors arrive on callbacks
//   - Stop and StopAndWait end a running StartEx
//   - Reconnect replaces the underlying connection
//
// WSDialer speaks the JSON-command / binary-record WebSocket bridge.
// Subpackage gatewaytest provides an in-memory Session for tests.
package gateway
