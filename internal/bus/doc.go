// Package bus is the in-memory message bus linking channels to the agent
// loop. Channels publish InboundMessages; the agent loop publishes
// OutboundMessages which the channel manager routes back to the originating
// channel by name.
//
// Outbound messages carry correlation metadata under two namespaces
// ("progress" and "http_relay"); see OutboundMessage.RequestID for the
// resolution order.
package bus
