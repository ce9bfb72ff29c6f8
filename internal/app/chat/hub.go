/*
Package chat contains the connection-and-message-routing core of the server.

This file defines the Hub: the dispatch table for inbound frames, the
authenticate handshake, the consent handshake for private conversations, typing
signals, reaction merging, moderation, and the presence broadcaster. Handlers
run on each connection's read loop, so frames from one connection are processed
strictly sequentially while different connections proceed concurrently; all
shared state lives behind the registry lock.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"concord/internal/app/store"
	"concord/internal/app/user"
	"concord/internal/metrics"
	"concord/internal/pkg/errs"
	"concord/internal/pkg/logx"
)

const (
	// historyLimit caps how many messages a history fetch returns.
	historyLimit = 50

	// storeTimeout bounds every call into the external store. A stalled store
	// call stalls only the one frame being handled, never other connections.
	storeTimeout = 10 * time.Second
)

// Hub owns the connection registry and routes every inbound frame to its
// handler. It consumes the user and message stores as external collaborators
// and never caches message content beyond the outbound payload being built.
type Hub struct {
	registry *Registry
	users    store.UserStore
	messages store.MessageStore

	// presenceMu serializes presence snapshots with their fan-out so clients
	// never observe presence frames out of order relative to registry changes.
	presenceMu sync.Mutex

	logger zerolog.Logger
}

// NewHub constructs a Hub around the given collaborator stores.
func NewHub(users store.UserStore, messages store.MessageStore) *Hub {
	hubLogger := logx.Logger().With().Str("component", "hub").Logger()

	return &Hub{
		registry: NewRegistry(),
		users:    users,
		messages: messages,
		logger:   hubLogger,
	}
}

// Registry exposes the connection registry (presence snapshots, lookups).
func (h *Hub) Registry() *Registry {
	return h.registry
}

func storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// Dispatch routes one raw inbound frame from the given connection. Malformed
// frames and unknown types are dropped without a response; a protocol
// violation never closes the connection.
func (h *Hub) Dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.InboundMessages.WithLabelValues("dropped").Inc()
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON, frame dropped")
		return
	}

	// Everything except authenticate is silently dropped while anonymous.
	if c.identity == nil && env.Type != TypeAuthenticate {
		metrics.InboundMessages.WithLabelValues("dropped").Inc()
		c.logger.Debug().Str("msg_type", env.Type).Msg("Frame from unauthenticated connection dropped")
		return
	}

	switch env.Type {
	case TypeAuthenticate:
		h.handleAuthenticate(c, env.Raw)
	case TypeGetHistory:
		h.handleGetHistory(c, env.Raw)
	case TypeMessage:
		h.handleCommunityMessage(c, env.Raw)
	case TypePrivateMessage:
		h.handlePrivateMessage(c, env.Raw)
	case TypeChatRequest:
		h.handleChatRequest(c, env.Raw)
	case TypeRequestResponse:
		h.handleRequestResponse(c, env.Raw)
	case TypeTypingStart, TypeTypingStop:
		h.handleTyping(c, env.Type, env.Raw)
	case TypeAddReaction:
		h.handleAddReaction(c, env.Raw)
	case TypeDeleteMessage:
		h.handleDeleteMessage(c, env.Raw)
	case TypeClearChat:
		h.handleClearChat(c)
	default:
		metrics.InboundMessages.WithLabelValues("dropped").Inc()
		c.logger.Debug().Str("msg_type", env.Type).Msg("Client sent unsupported message type")
		return
	}

	metrics.InboundMessages.WithLabelValues(env.Type).Inc()
}

// handleAuthenticate binds the connection to an account verified against the
// user store. An unknown username is ignored without a response. A second
// authentication for a name already registered elsewhere supersedes the old
// session, which is force-closed. Re-authenticating an already bound
// connection re-binds it; a re-bind under a different name releases the old
// registration first.
func (h *Hub) handleAuthenticate(c *Client, raw json.RawMessage) {
	var msg AuthenticateMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Username == "" {
		c.logger.Warn().Msg("Invalid authenticate payload, frame dropped")
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	rec, err := h.users.FindByName(ctx, msg.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deliberately silent toward the client: no existence leaks.
			h.logger.Warn().Str("username", msg.Username).Msg("Authenticate for unknown username ignored")
		} else {
			metrics.StoreFailures.WithLabelValues("find_user").Inc()
			h.logger.Error().Err(err).Str("username", msg.Username).Msg("User lookup failed during authenticate")
		}
		return
	}

	ident := user.Identity{
		Name:   rec.Name,
		Role:   user.ParseRole(rec.Role),
		Avatar: rec.AvatarURL,
	}

	// A connection re-binding to a different account releases its old name
	// first, otherwise the stale entry would outlive the connection.
	if c.identity != nil && c.identity.Name != ident.Name {
		h.registry.Unregister(c.identity.Name, c)
	}
	c.identity = &ident
	c.logger = c.logger.With().Str("username", ident.Name).Logger()

	if prev := h.registry.Register(c, ident); prev != nil {
		h.logger.Warn().Str("username", ident.Name).Msg("Session replaced by new connection, kicking old session")
		prev.Kick(errs.NewError(errs.ErrSessionReplaced).Message)
	}

	metrics.UsersOnline.Set(float64(h.registry.Len()))
	h.BroadcastPresence()

	history, err := h.messages.CommunityHistory(ctx, historyLimit)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("community_history").Inc()
		h.logger.Error().Err(err).Msg("Failed to fetch community history after authenticate")
		return
	}

	c.sendFrame(historyFrame{Type: TypeHistory, Data: history})
}

// handleGetHistory serves a history fetch for the community channel or the
// two-party conversation with the named user. The result goes to the
// requesting connection only.
func (h *Hub) handleGetHistory(c *Client, raw json.RawMessage) {
	var msg GetHistoryMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.With == "" {
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	var (
		history []store.Message
		err     error
	)
	if msg.With == CommunityTarget {
		history, err = h.messages.CommunityHistory(ctx, historyLimit)
	} else {
		history, err = h.messages.PrivateHistory(ctx, c.Name(), msg.With, historyLimit)
	}
	if err != nil {
		metrics.StoreFailures.WithLabelValues("history").Inc()
		h.logger.Error().Err(err).Str("with", msg.With).Msg("History fetch failed")
		return
	}

	c.sendFrame(historyFrame{Type: TypeChatHistory, Data: history})
}

// handleCommunityMessage persists a community message and broadcasts it to
// every registered connection, the sender included.
func (h *Hub) handleCommunityMessage(c *Client, raw json.RawMessage) {
	var msg CommunityMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	if !validContent(c, msg.Text, msg.Image) {
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	persisted, err := h.messages.InsertCommunity(ctx, c.Name(), msg.Text, msg.Image)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("insert_community").Inc()
		h.logger.Error().Err(err).Msg("Failed to persist community message")
		return
	}

	h.broadcast(messageFrame{Type: TypeMessage, Data: persisted}, nil)
	metrics.Broadcasts.WithLabelValues(TypeMessage).Inc()
}

// handlePrivateMessage persists a private message and delivers it to exactly
// the recipient and the sender. If the recipient is not currently registered
// the message is dropped entirely: not persisted, not queued.
func (h *Hub) handlePrivateMessage(c *Client, raw json.RawMessage) {
	var msg PrivateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	if msg.Recipient == "" || !validContent(c, msg.Text, msg.Image) {
		return
	}

	recipient := h.registry.Lookup(msg.Recipient)
	if recipient == nil {
		c.logger.Debug().Str("recipient", msg.Recipient).Msg("Private message to offline recipient dropped")
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	persisted, err := h.messages.InsertPrivate(ctx, c.Name(), msg.Recipient, msg.Text, msg.Image)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("insert_private").Inc()
		h.logger.Error().Err(err).Msg("Failed to persist private message")
		return
	}

	frame := messageFrame{Type: TypePrivateMessage, Data: persisted}
	recipient.sendFrame(frame)
	c.sendFrame(frame)
}

// handleChatRequest forwards a consent request to the target. An absent target
// means the request is silently dropped; nothing is persisted either way.
func (h *Hub) handleChatRequest(c *Client, raw json.RawMessage) {
	var msg ChatRequestMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.To == "" || msg.To == c.Name() {
		return
	}

	target := h.registry.Lookup(msg.To)
	if target == nil {
		c.logger.Debug().Str("to", msg.To).Msg("Chat request to offline target dropped")
		return
	}

	target.sendFrame(fromFrame{Type: TypeIncomingRequest, From: c.Name()})
}

// handleRequestResponse routes the answer to a chat request back to the
// original requester. A conversation only opens after an explicit "accepted"
// reaches the requester; rejection is terminal and the requester must resend
// to retry.
func (h *Hub) handleRequestResponse(c *Client, raw json.RawMessage) {
	var msg RequestResponseMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.To == "" {
		return
	}
	if msg.Response != ResponseAccepted && msg.Response != ResponseRejected {
		return
	}

	requester := h.registry.Lookup(msg.To)
	if requester == nil {
		c.logger.Debug().Str("to", msg.To).Msg("Request response to offline requester dropped")
		return
	}

	requester.sendFrame(responseFrame{Type: TypeResponseReceived, From: c.Name(), Response: msg.Response})
}

// handleTyping relays typing signals: community-targeted signals go to every
// registered connection except the sender, direct signals go to the single
// target if registered.
func (h *Hub) handleTyping(c *Client, typ string, raw json.RawMessage) {
	var msg TypingMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.To == "" {
		return
	}

	frame := fromFrame{Type: typ, From: c.Name()}

	if msg.To == CommunityTarget {
		h.broadcast(frame, c)
		return
	}

	if target := h.registry.Lookup(msg.To); target != nil {
		target.sendFrame(frame)
	}
}

// handleAddReaction merges the sender's reaction into the message, persists
// the full updated reaction set, and only then broadcasts the updated message
// to everyone.
func (h *Hub) handleAddReaction(c *Client, raw json.RawMessage) {
	var msg AddReactionMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.MessageID == "" || msg.Emoji == "" {
		return
	}

	scope, ok := store.ParseScope(msg.MessageType)
	if !ok {
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	target, err := h.messages.FindByID(ctx, scope, msg.MessageID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.StoreFailures.WithLabelValues("find_message").Inc()
			h.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Message lookup failed for reaction")
		}
		return
	}

	updated := ApplyReaction(target.Reactions, c.Name(), msg.Emoji)

	if err := h.messages.UpdateReactions(ctx, scope, msg.MessageID, updated); err != nil {
		metrics.StoreFailures.WithLabelValues("update_reactions").Inc()
		h.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to persist reactions")
		return
	}

	target.Reactions = updated
	h.broadcast(messageFrame{Type: TypeMessageUpdated, Data: *target}, nil)
	metrics.Broadcasts.WithLabelValues(TypeMessageUpdated).Inc()
}

// handleDeleteMessage removes a message if the sender owns it or holds the
// admin role. Denials and store failures alike are silent: the record is
// removed from the store before anyone is notified, and a failed delete never
// broadcasts.
func (h *Hub) handleDeleteMessage(c *Client, raw json.RawMessage) {
	var msg DeleteMessageMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == "" {
		return
	}

	scope, ok := store.ParseScope(msg.MessageType)
	if !ok {
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	target, err := h.messages.FindByID(ctx, scope, msg.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.StoreFailures.WithLabelValues("find_message").Inc()
			h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Message lookup failed for delete")
		}
		return
	}

	if !CanDelete(*target, *c.identity) {
		c.logger.Warn().Str("message_id", msg.ID).Msg("Unauthorized delete attempt ignored")
		return
	}

	deleted, err := h.messages.DeleteByID(ctx, scope, msg.ID)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("delete_message").Inc()
		h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to delete message")
		return
	}
	if !deleted {
		return
	}

	h.broadcast(deletedFrame{Type: TypeMessageDeleted, ID: msg.ID}, nil)
	metrics.Broadcasts.WithLabelValues(TypeMessageDeleted).Inc()
}

// handleClearChat wipes the community channel. Non-admin callers are silently
// ignored; nothing is broadcast unless the store delete succeeded.
func (h *Hub) handleClearChat(c *Client) {
	if !CanClearAll(*c.identity) {
		c.logger.Warn().Msg("Unauthorized clearChat attempt ignored")
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	count, err := h.messages.DeleteAllCommunity(ctx)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("clear_community").Inc()
		h.logger.Error().Err(err).Msg("Failed to clear community messages")
		return
	}

	h.logger.Info().Int64("deleted", count).Str("by", c.Name()).Msg("Community channel cleared")
	h.broadcast(bareFrame{Type: TypeChatCleared}, nil)
	metrics.Broadcasts.WithLabelValues(TypeChatCleared).Inc()
}

// Detach removes a closing connection from the registry and rebroadcasts
// presence exactly once. Called from the connection's read-loop cleanup; a
// connection superseded by a newer session leaves the newer registry entry
// untouched.
func (h *Hub) Detach(c *Client) {
	if c.identity == nil {
		return
	}

	if h.registry.Unregister(c.identity.Name, c) {
		metrics.UsersOnline.Set(float64(h.registry.Len()))
		h.BroadcastPresence()
	}
}

// BroadcastPresence pushes the current online-user list to every registered
// connection. The snapshot and its fan-out are serialized so presence frames
// arrive in registry order.
func (h *Hub) BroadcastPresence() {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	frame := presenceFrame{Type: TypeOnlineUsers, Data: h.registry.Snapshot()}
	h.broadcast(frame, nil)
	metrics.Broadcasts.WithLabelValues(TypeOnlineUsers).Inc()
}

// broadcast sends the frame to every registered connection, optionally
// skipping one. The frame is marshaled once; a failing or slow recipient never
// aborts delivery to the rest.
func (h *Hub) broadcast(frame any, except *Client) {
	messageBytes, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error().Err(err).Msg("Error marshaling broadcast frame")
		return
	}

	for _, target := range h.registry.fanout() {
		if target.client == except {
			continue
		}
		if err := target.client.enqueue(messageBytes); err != nil {
			h.logger.Warn().Str("username", target.name).Msg("Broadcast delivery failed for one client, continuing")
		}
	}
}

// Shutdown force-closes every registered connection. Used during graceful
// server shutdown.
func (h *Hub) Shutdown() {
	for _, client := range h.registry.Clients() {
		client.Kick("Server is shutting down.")
	}
	h.logger.Info().Msg("Hub shutdown complete.")
}

// validContent enforces the router-side content rules: empty messages are
// rejected and overlong text is dropped.
func validContent(c *Client, text, image string) bool {
	if text == "" && image == "" {
		c.logger.Debug().Msg("Empty message dropped")
		return false
	}
	if len(text) > MaxContentBytes {
		c.logger.Warn().Int("text_bytes", len(text)).Msg("Overlong message dropped")
		return false
	}
	return true
}
