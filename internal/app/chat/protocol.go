/*
Package chat contains the connection-and-message-routing core of the server:
the registry of live authenticated connections, the per-connection client
lifecycle, the typed websocket protocol, and the routing, consent, reaction,
and moderation rules.

This file defines the wire protocol. Every frame is a single JSON object with
a mandatory "type" field; the remaining fields depend on the type. Unknown
fields are ignored, unknown types are dropped.
*/
package chat

import (
	"encoding/json"
	"fmt"

	"concord/internal/app/store"
)

// CommunityTarget is the reserved conversation name of the shared channel.
const CommunityTarget = "community"

// Client -> Server message types.
const (
	TypeAuthenticate    = "authenticate"
	TypeGetHistory      = "get_history"
	TypeMessage         = "message"
	TypePrivateMessage  = "private_message"
	TypeChatRequest     = "chat_request"
	TypeRequestResponse = "request_response"
	TypeTypingStart     = "typing_start"
	TypeTypingStop      = "typing_stop"
	TypeAddReaction     = "add_reaction"
	TypeDeleteMessage   = "deleteMessage"
	TypeClearChat       = "clearChat"
)

// Server -> Client message types.
const (
	TypeHistory          = "history"
	TypeChatHistory      = "chat_history"
	TypeOnlineUsers      = "online_users"
	TypeIncomingRequest  = "incoming_request"
	TypeResponseReceived = "response_received"
	TypeMessageUpdated   = "message_updated"
	TypeMessageDeleted   = "messageDeleted"
	TypeChatCleared      = "chatCleared"
)

// Responses carried by request_response frames.
const (
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
)

// Envelope holds the message type and the raw JSON frame for deferred parsing
// into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw frame and extracts only the "type"
// field so the rest of the payload can be decoded later into the appropriate
// concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("chat: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("chat: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server frames
// ---------------------------------------------------------------------------

// AuthenticateMsg binds an anonymous connection to an account. The username
// is verified against the user store; the role never comes from the client.
type AuthenticateMsg struct {
	Username string `json:"username"`
}

// GetHistoryMsg requests the history of a conversation: the community channel
// or the private conversation with the named user.
type GetHistoryMsg struct {
	With string `json:"with"`
}

// CommunityMsg posts a message to the community channel. At least one of
// Text/Image must be non-empty.
type CommunityMsg struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// PrivateMsg posts a message to a private conversation.
type PrivateMsg struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Image     string `json:"image"`
}

// ChatRequestMsg asks the named user for consent to open a private conversation.
type ChatRequestMsg struct {
	To string `json:"to"`
}

// RequestResponseMsg answers a pending chat request with "accepted" or "rejected".
type RequestResponseMsg struct {
	To       string `json:"to"`
	Response string `json:"response"`
}

// TypingMsg signals typing activity toward the community channel or a single user.
type TypingMsg struct {
	To string `json:"to"`
}

// AddReactionMsg toggles or changes the sender's emoji reaction on a message.
type AddReactionMsg struct {
	MessageID   string `json:"messageId"`
	MessageType string `json:"messageType"`
	Emoji       string `json:"emoji"`
}

// DeleteMessageMsg asks to delete a message, subject to owner-or-admin rules.
type DeleteMessageMsg struct {
	ID          string `json:"id"`
	MessageType string `json:"messageType"`
}

// ---------------------------------------------------------------------------
// Server -> Client frames
// ---------------------------------------------------------------------------

// historyFrame carries an ordered message history (history / chat_history).
type historyFrame struct {
	Type string          `json:"type"`
	Data []store.Message `json:"data"`
}

// messageFrame carries a single persisted message (message / private_message /
// message_updated).
type messageFrame struct {
	Type string        `json:"type"`
	Data store.Message `json:"data"`
}

// presenceFrame carries the current online-user list.
type presenceFrame struct {
	Type string          `json:"type"`
	Data []PresenceEntry `json:"data"`
}

// fromFrame carries signals attributed to a user (incoming_request,
// typing_start, typing_stop).
type fromFrame struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// responseFrame carries the answer to a chat request back to the requester.
type responseFrame struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	Response string `json:"response"`
}

// deletedFrame notifies all clients that a message was removed.
type deletedFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// bareFrame is a frame with no payload (chatCleared).
type bareFrame struct {
	Type string `json:"type"`
}
