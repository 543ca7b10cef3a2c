// Package live is the streaming client.
//
// A Client owns one gateway session. Callers subscribe, call Start to
// receive the session metadata, and then consume records through any
// combination of three surfaces:
//
//   - Next and Records pull from an ordered queue. With several readers
//     each record goes to exactly one of them.
//   - OnRecord, OnError and OnMetadata register push listeners. A
//     listener that panics is logged and skipped.
//   - Metadata returns the metadata of the current stream.
//
// Records are delivered in transport order and never before the
// metadata of their stream. Transport callbacks only decode, enqueue and
// notify; they never call back into the session.
//
// A health.Monitor watches the callbacks. When the stream fails it halts
// the session, reconnects, replays every accepted subscription in the
// order it was made and starts again.
package live
