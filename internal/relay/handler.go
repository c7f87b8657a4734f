// ABOUTME: Inbound request handler and SSE streaming loop for the relay channel.
// ABOUTME: Validates requests, correlates them on the registry, and streams outbound messages.

package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/warrenlabs/warren-gateway/internal/bus"
)

// Stream notices emitted as terminal events when no real response can be
// delivered.
const (
	publishFailureNotice = "I could not process this message. Please retry."
	timeoutNotice        = "Upstream response timed out."
)

// handleMessagePost accepts one inbound message and streams the agent's
// reply as SSE events. Lifecycle of a request:
//
//  1. Validate sender_id/chat_id/content (camelCase aliases accepted).
//  2. Mint a correlation id and merge it into the outbound metadata under
//     the relay namespace, preserving caller-supplied metadata.
//  3. Register the id, obtaining the delivery channel.
//  4. Publish the inbound message on the bus; a synchronous publish failure
//     becomes a single terminal event rather than an HTTP error.
//  5. Stream delivered messages until a terminal event, timeout, or
//     transport failure.
//
// The registry entry is removed on every exit path.
func (c *Channel) handleMessagePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !c.accepting.Load() {
		c.sendJSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	req, errMsg := parseMessageRequest(r)
	if errMsg != "" {
		c.sendJSONError(w, http.StatusBadRequest, errMsg)
		return
	}

	requestID := uuid.New().String()
	mergeRequestID(req.Metadata, requestID)

	deliveries, err := c.registry.Register(requestID)
	if err != nil {
		// Freshly minted UUIDs never collide; this request fails, the
		// process keeps running.
		c.logger.Error("correlation id collision", "request_id", requestID, "error", err)
		c.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer c.registry.Remove(requestID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		c.logger.Error("streaming not supported")
		c.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	// Push the status line and headers out before any event exists; the
	// caller should see the open stream immediately, not after the first
	// delivery.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	inbound := bus.InboundMessage{
		ID:       uuid.New().String(),
		Channel:  ChannelName,
		SenderID: req.SenderID,
		ChatID:   req.ChatID,
		Content:  req.Content,
		Metadata: req.Metadata,
	}

	if err := c.publisher.PublishInbound(r.Context(), inbound); err != nil {
		c.logger.Error("failed to publish inbound relay message",
			"request_id", requestID,
			"error", err,
		)
		c.writeEvent(w, flusher, "response", publishFailureNotice)
		return
	}

	c.streamDeliveries(r, w, flusher, requestID, deliveries)
}

// streamDeliveries runs the delivery loop for one request. The timeout
// resets after every delivered message, not from request start. A progress
// message keeps the loop alive; anything else is terminal.
func (c *Channel) streamDeliveries(r *http.Request, w http.ResponseWriter, flusher http.Flusher, requestID string, deliveries <-chan bus.OutboundMessage) {
	timer := time.NewTimer(c.timeout())
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Caller went away mid-stream. Transport error, not timeout:
			// nothing to emit, the deferred Remove handles cleanup.
			c.logger.Debug("relay client disconnected", "request_id", requestID)
			return

		case <-timer.C:
			c.writeEvent(w, flusher, "response", timeoutNotice)
			return

		case msg := <-deliveries:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.timeout())

			eventType := "response"
			if msg.IsProgress() {
				eventType = "progress"
			}
			if err := c.writeEvent(w, flusher, eventType, msg.Content); err != nil {
				c.logger.Debug("relay stream write failed",
					"request_id", requestID,
					"error", err,
				)
				return
			}
			if eventType == "response" {
				return
			}
		}
	}
}

// messageRequest is the validated body of a relay POST.
type messageRequest struct {
	SenderID string
	ChatID   string
	Content  string
	Metadata map[string]any
}

// parseMessageRequest decodes and validates the request body. It returns a
// non-empty error message for any 4xx condition.
func parseMessageRequest(r *http.Request) (*messageRequest, string) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, "Invalid JSON body"
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return nil, "Payload must be an object"
	}

	senderID := textField(obj, "senderId", "sender_id")
	chatID := textField(obj, "chatId", "chat_id")
	content, hasContent := contentField(obj)

	if senderID == "" || chatID == "" || !hasContent {
		return nil, "Missing sender_id/chat_id/content"
	}

	metadata, _ := obj["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &messageRequest{
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Metadata: metadata,
	}, ""
}

// textField returns the first non-empty string value among keys.
func textField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// contentField extracts content, which must be present but may be an empty
// string. Non-string JSON values are stringified.
func contentField(obj map[string]any) (string, bool) {
	v, ok := obj["content"]
	if !ok || v == nil {
		return "", false
	}
	if s, isStr := v.(string); isStr {
		return s, true
	}
	return fmt.Sprint(v), true
}

// mergeRequestID records the correlation id under the relay namespace
// without disturbing any other caller-supplied metadata.
func mergeRequestID(metadata map[string]any, requestID string) {
	relayNS, ok := metadata[bus.RelayNamespace].(map[string]any)
	if !ok {
		relayNS = map[string]any{}
		metadata[bus.RelayNamespace] = relayNS
	}
	relayNS[bus.RequestIDKey] = requestID
}

// writeEvent writes one SSE event with a JSON payload carrying the content
// and flushes it immediately so progress events are not buffered.
func (c *Channel) writeEvent(w http.ResponseWriter, flusher http.Flusher, eventType, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return fmt.Errorf("writing SSE event: %w", err)
	}
	flusher.Flush()
	return nil
}

// sendJSONError writes a JSON error response.
func (c *Channel) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
