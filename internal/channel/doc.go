// Package channel defines the Channel abstraction and the Manager that owns
// channel lifecycle and outbound message routing.
//
// A Channel is any transport the gateway speaks: the HTTP relay, a chat
// frontend, a webhook sink. Channels publish inbound messages on the bus and
// the Manager fans outbound bus messages back to the channel each one names.
package channel
