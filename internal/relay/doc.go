// Package relay implements the HTTP relay channel: a one-shot POST /message
// endpoint whose reply arrives later, out-of-band, on the internal bus.
//
// # Request correlation
//
// Each POST mints a fresh correlation identifier, registers it in the
// Registry against a per-request FIFO delivery channel, and merges the
// identifier into the outbound metadata under the "http_relay" namespace.
// The agent echoes that metadata; the dispatcher (Channel.Send) resolves the
// identifier — preferring the "progress" namespace over "http_relay" — and
// enqueues the message onto the matching delivery channel. Messages without
// a resolvable identifier belong to other channels and are dropped silently.
//
// # Streaming
//
// Delivered messages are streamed as Server-Sent Events:
//
//	event: progress
//	data: {"content":"thinking..."}
//
//	event: response
//	data: {"content":"hello back"}
//
// A progress-flagged message keeps the stream open; anything else is
// terminal. The delivery-wait timeout (default 900s) resets after every
// delivered event. Every exit path — terminal event, timeout, publish
// failure, client disconnect — removes the registry entry before returning.
package relay
