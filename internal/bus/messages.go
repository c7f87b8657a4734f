// ABOUTME: Message types carried on the internal bus between channels and the agent loop.
// ABOUTME: Defines inbound/outbound messages and the metadata correlation conventions.

package bus

// Metadata namespaces used to correlate outbound messages with the relay
// request that produced them. ProgressNamespace wins when both are present.
const (
	ProgressNamespace = "progress"
	RelayNamespace    = "http_relay"

	// RequestIDKey is the key inside either namespace carrying the
	// correlation identifier.
	RequestIDKey = "request_id"

	// ProgressFlagKey marks an outbound message as a non-terminal progress
	// update. Lives in the ProgressNamespace.
	ProgressFlagKey = "is_progress"
)

// InboundMessage is a message received from a channel, destined for the agent.
type InboundMessage struct {
	ID       string         `json:"id"`
	Channel  string         `json:"channel"`
	SenderID string         `json:"sender_id"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	Media    []string       `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OutboundMessage is a message produced by the agent, destined for a channel.
type OutboundMessage struct {
	Channel  string         `json:"channel"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	Media    []string       `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// namespaceOf returns the named sub-map of metadata, or nil if it is absent
// or not a map. Metadata decoded from JSON always yields map[string]any
// sub-maps.
func namespaceOf(metadata map[string]any, name string) map[string]any {
	if metadata == nil {
		return nil
	}
	ns, _ := metadata[name].(map[string]any)
	return ns
}

// requestIDOf resolves the correlation identifier from message metadata. The
// progress namespace takes precedence over the relay namespace; an empty
// string means the message belongs to no relay request.
func requestIDOf(metadata map[string]any) string {
	if ns := namespaceOf(metadata, ProgressNamespace); ns != nil {
		if id, ok := ns[RequestIDKey].(string); ok && id != "" {
			return id
		}
	}
	if ns := namespaceOf(metadata, RelayNamespace); ns != nil {
		if id, ok := ns[RequestIDKey].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

// Namespace returns the named metadata sub-map, or nil if it is absent or not
// a map.
func (m *InboundMessage) Namespace(name string) map[string]any {
	return namespaceOf(m.Metadata, name)
}

// RequestID resolves the correlation identifier carried in from a relay
// channel, so the agent can tag its replies with it.
func (m *InboundMessage) RequestID() string {
	return requestIDOf(m.Metadata)
}

// Namespace returns the named metadata sub-map, or nil if it is absent or not
// a map.
func (m *OutboundMessage) Namespace(name string) map[string]any {
	return namespaceOf(m.Metadata, name)
}

// RequestID resolves the correlation identifier from the message metadata.
func (m *OutboundMessage) RequestID() string {
	return requestIDOf(m.Metadata)
}

// IsProgress reports whether the message is a non-terminal progress update.
// Only a boolean true counts; anything else means terminal.
func (m *OutboundMessage) IsProgress() bool {
	ns := m.Namespace(ProgressNamespace)
	if ns == nil {
		return false
	}
	flag, ok := ns[ProgressFlagKey].(bool)
	return ok && flag
}
