// ABOUTME: Package documentation for the dedupe package.
// ABOUTME: Explains the redelivery window and its generation scheme.

// Package dedupe suppresses reprocessing of redelivered bus messages.
//
// The agent loop records every inbound message ID it handles; a channel that
// retries a publish, or a restart-triggered replay, delivers the same ID
// again and is dropped. IDs are tracked in two rotating generations, so an
// entry survives for at least the configured window and at most twice that,
// and memory stays bounded without a background sweeper.
package dedupe
