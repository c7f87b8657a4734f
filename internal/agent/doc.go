// Package agent runs the conversational loop between the message bus and
// the LLM provider.
//
// # Overview
//
// The Loop consumes inbound messages from the bus, drops duplicates, builds
// model context from the recent transcript window, calls the configured
// provider, and publishes the reply as an outbound message addressed back
// to the message's channel and chat.
//
// # Message Flow
//
// For each inbound message the loop:
//
//  1. Checks the seen-ID window by message ID and skips redeliveries
//  2. Appends the user turn to the conversation transcript
//  3. Optionally publishes a progress update while the model works
//  4. Loads the recent transcript window as model context
//  5. Calls the provider and appends the assistant turn
//  6. Publishes the reply, carrying over the inbound correlation metadata
//
// # Correlation Metadata
//
// Channels that need replies correlated to requests (the HTTP relay) tag
// inbound messages with metadata. The loop copies that metadata onto every
// reply and progress update so the channel can route each one to the right
// waiting client.
//
// # Failure Handling
//
// Provider errors never go silent: the loop answers with a generic retry
// notice so the user is not left waiting, and logs the underlying error.
package agent
