// Package audit implements the append-only security event log: event
// model, pluggable sinks, and the asynchronous dispatcher that decouples
// event delivery from the credential operations being described.
//
// Writes are best-effort by contract. A full buffer, a slow sink, or a
// closed dispatcher drops the event; it never blocks or fails the primary
// operation. Retention of delivered events is the sink's concern.
package audit
