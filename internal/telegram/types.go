// Package telegram defines the chat platform types and the transport
// contract the swarm subsystem depends on. The wire client itself is
// provided by the hosting deployment; everything here is transport
// surface only.
package telegram

// TransportID identifies the chat platform in message metadata.
const TransportID = "telegram"

// IncomingMessage is a normalized inbound chat message. Live messages
// come from the platform transport; synthetic messages are manufactured
// by the swarm ingress pipeline and carry negative message ids.
type IncomingMessage struct {
	Transport        string         `json:"transport"`
	ChatID           int64          `json:"chat_id"`
	MessageID        int64          `json:"message_id"`
	Text             string         `json:"text"`
	SenderID         *int64         `json:"sender_id,omitempty"`
	ThreadID         *int64         `json:"thread_id,omitempty"`
	ReplyToMessageID *int64         `json:"reply_to_message_id,omitempty"`
	ReplyToText      string         `json:"reply_to_text,omitempty"`
	Raw              map[string]any `json:"-"`

	// Ingress provenance. Empty for live platform traffic.
	IngressSource string `json:"ingress_source,omitempty"`
	IngressIntent string `json:"ingress_intent,omitempty"`
	OriginAgent   string `json:"origin_agent,omitempty"`
}

// Synthetic reports whether the message was manufactured by an ingress
// pipeline rather than received from the platform.
func (m IncomingMessage) Synthetic() bool {
	return m.IngressSource != ""
}

// SentMessage is the platform acknowledgement for an outbound message.
type SentMessage struct {
	MessageID int64 `json:"message_id"`
}

// ForumTopic is the platform record for a created forum topic.
type ForumTopic struct {
	ThreadID int64  `json:"message_thread_id"`
	Name     string `json:"name"`
}
