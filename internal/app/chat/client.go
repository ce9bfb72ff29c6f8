/*
Package chat contains the connection-and-message-routing core of the server.

This file defines the Client struct, representing one live WebSocket connection.
It manages the connection's lifecycle, the message communication loops (ReadPump
and WritePump), and delegates inbound frames to the Hub. A connection starts
anonymous and gains an identity through the authenticate handshake.
*/
package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"concord/internal/app/user"
	"concord/internal/metrics"
	"concord/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client. Chat
	// images travel inline as data URLs, so the limit is generous.
	maxMessageSize = 10 << 20

	// maximum allowed size (in bytes) for text message content.
	MaxContentBytes = 5000

	// WsCloseCodeSessionReplaced is a custom WebSocket Close Code (4000-4999
	// range) used to signal the client that its session was superseded by a
	// new connection authenticating with the same name.
	WsCloseCodeSessionReplaced = 4001
)

// Client represents one live WebSocket connection and, once authenticated,
// the identity bound to it.
type Client struct {
	// hub routes this connection's inbound frames.
	hub *Hub

	// underlying WebSocket connection.
	conn *websocket.Conn

	// identity is nil until the authenticate handshake succeeds. It is only
	// written and read on the connection's own read loop; the registry keeps
	// its own copy for presence snapshots.
	identity *user.Identity

	// a buffered channel used to queue frames waiting to be sent to the client.
	// It is never closed; closure is signaled through the closed channel so a
	// handler still in flight on the read loop can enqueue without panicking.
	send chan []byte

	// closed is signaled exactly once by Kick. WritePump sends the stored
	// close frame and exits; enqueue refuses new frames afterwards.
	closeOnce sync.Once
	closed    chan struct{}
	closeMsg  []byte

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for a freshly upgraded connection.
func NewClient(hub *Hub, wsConn *websocket.Conn) *Client {
	clientLogger := logx.Logger().With().
		Str("component", "client").
		Logger()

	return &Client{
		hub:    hub,
		conn:   wsConn,
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
		logger: clientLogger,
	}
}

// Name returns the authenticated username, or "" while anonymous.
func (c *Client) Name() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.Name
}

// ReadPump reads frames from the WebSocket connection and dispatches them to
// the Hub strictly sequentially. It handles heartbeats (Pong) and performs
// cleanup when the connection closes.
func (c *Client) ReadPump() {
	metrics.ConnectionsActive.Inc()
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		c.hub.Dispatch(c, messageBytes)
	}
}

// cleanupOnDisconnect runs exactly once when ReadPump terminates: the
// connection is detached from the hub (unregister + presence rebroadcast) and
// the transport is closed.
func (c *Client) cleanupOnDisconnect() {
	metrics.ConnectionsActive.Dec()

	c.hub.Detach(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump writes frames from the send channel to the WebSocket connection
// and keeps the heartbeat alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeQueuedMessage(message) {
				return
			}

		case <-c.closed:
			c.writeCloseMessage()
			return

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one frame pulled from the send channel.
// Returns true if the WritePump loop should continue.
func (c *Client) writeQueuedMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writeCloseMessage delivers the close frame stored by Kick. Runs on the
// write loop, so it never races a queued frame write.
func (c *Client) writeCloseMessage() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on close")
		return
	}

	if err := c.conn.WriteMessage(websocket.CloseMessage, c.closeMsg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send WS 4001 Close Message.")
	}
}

// writePingMessage sends a periodic WebSocket Ping to maintain the heartbeat.
// Returns false if the WritePump loop should terminate.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// sendFrame marshals the frame and queues it for delivery. A full send queue
// drops the frame rather than blocking the caller.
func (c *Client) sendFrame(frame any) error {
	messageBytes, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling frame for client")
		return err
	}

	return c.enqueue(messageBytes)
}

// enqueue places pre-marshaled bytes on the send queue without blocking.
// A kicked connection refuses new frames instead of panicking: handlers
// still in flight on its read loop may reply after the kick landed.
func (c *Client) enqueue(messageBytes []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("client connection closed")
	default:
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping frame")
		return fmt.Errorf("client send queue full")
	}
}

// Kick gracefully closes the connection with a custom WebSocket Close Frame
// (code 4001) indicating that the session was replaced. The frame itself is
// written by WritePump; Kick only records the reason and signals closure, so
// it is safe from any goroutine and idempotent under concurrent calls.
func (c *Client) Kick(reason string) {
	c.closeOnce.Do(func() {
		c.logger.Warn().
			Int("close_code", WsCloseCodeSessionReplaced).
			Str("reason", reason).
			Msg("Sending WS Kick message and closing connection.")

		c.closeMsg = websocket.FormatCloseMessage(
			WsCloseCodeSessionReplaced,
			reason,
		)
		close(c.closed)
	})
}
