// Package health tracks stream liveness and drives reconnection.
//
// A Monitor is fed by the client's callbacks: RecordActivity for every
// inbound record or heartbeat, RecordError for transport errors and
// RecordDisconnection when the stream drops. Its loop compares the time
// since the last activity against HeartbeatTimeout and marks the stream
// Stale when it is exceeded.
//
// With AutoReconnect enabled, an error, a disconnection or staleness starts
// a reconnection sequence. Only one sequence runs at a time; triggers that
// arrive while one is running are dropped and counted. Each attempt waits
// Policy.Delay(attempt) on the injected clock before calling the reconnect
// function.
package health
