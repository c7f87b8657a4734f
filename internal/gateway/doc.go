// ABOUTME: Package documentation for the gateway orchestrator.
// ABOUTME: Describes component wiring, lifecycle, and the HTTP surface.

// Package gateway wires the warren-gateway components together and manages
// their lifecycle.
//
// New constructs everything from configuration: the SQLite store, the
// in-memory message bus, the LLM provider, the agent loop, the reminder
// scheduler, and the channel manager with its registered channels. Run starts
// the workers, binds the HTTP listener (plain TCP or a tsnet node when
// Tailscale is enabled), and blocks until the context is canceled or the
// server fails, then shuts everything down in dependency order.
//
// The single HTTP server carries three surfaces:
//
//   - /health and /health/ready for liveness and readiness probes
//   - /api/reminders for scheduling, listing, and canceling reminders
//   - the relay channel's message endpoint, when the http channel is enabled
//
// Shutdown ordering: the HTTP server stops accepting requests first, then
// channels stop delivering, then the agent loop and the routing loop are
// canceled and the bus closes, and finally the store closes.
package gateway
