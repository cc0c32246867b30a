/*
Package chat contains the realtime core of the group-chat service.

This file defines the Client struct, the gateway side of one WebSocket
connection. It runs the read/write pumps, decodes inbound envelopes into
router calls, and queues outbound frames. Every router failure is reported to
this connection only.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rtchat/internal/pkg/errs"
	"rtchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// capacity of the per-connection outbound queue.
	sendQueueSize = 256
)

// Client represents one active WebSocket connection. It implements Sink, so
// the router can fan frames out to it without knowing about websockets.
type Client struct {
	id     string
	router *Router
	conn   *websocket.Conn

	// send queues frames waiting to be written to the connection.
	send chan []byte

	// closeOnce guards the router-side disconnect cleanup so it runs exactly
	// once regardless of which pump fails first.
	closeOnce sync.Once

	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection and registers it
// with the router as anonymous. Callers start ReadPump and WritePump next.
func NewClient(router *Router, wsConn *websocket.Conn) *Client {
	connID := uuid.NewString()

	clientLogger := logx.Logger().With().
		Str("conn_id", connID).
		Logger()

	client := &Client{
		id:     connID,
		router: router,
		conn:   wsConn,
		send:   make(chan []byte, sendQueueSize),
		logger: clientLogger,
	}

	router.Connect(client)

	return client
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Send enqueues a frame for delivery. It never blocks: a full queue drops the
// frame and reports false.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadPump handles reading frames from the WebSocket connection. It handles
// heartbeats (Pong), envelope decoding, and performs cleanup upon connection
// closure.
func (c *Client) ReadPump() {
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
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundEvent(messageBytes)
	}
}

// cleanupOnDisconnect runs the router-side teardown and closes the socket.
// Safe to reach from either pump; the router work happens once.
func (c *Client) cleanupOnDisconnect() {
	c.closeOnce.Do(func() {
		c.logger.Info().Msg("Client connection cleanup starting.")
		c.router.Disconnect(c.id)
	})

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundEvent decodes one raw frame and dispatches it to the router.
func (c *Client) processInboundEvent(messageBytes []byte) {
	var envelope Envelope
	if err := json.Unmarshal(messageBytes, &envelope); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	ctx := context.Background()

	switch envelope.Type {
	case EventAuthenticate:
		var payload AuthenticatePayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		c.reportIfError(c.router.Authenticate(ctx, c.id, payload.Token))

	case EventUserOnline:
		c.reportIfError(c.router.AnnounceOnline(c.id))

	case EventJoinChannel:
		var payload ChannelPayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		c.reportIfError(c.router.JoinChannel(ctx, c.id, payload.ChannelID))

	case EventJoinRequest:
		var payload ChannelPayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		userID, ok := c.router.Sessions().UserOf(c.id)
		if !ok {
			c.SendError(errs.NewError(errs.ErrUnauthorized))
			return
		}
		_, joinErr := c.router.RequestJoin(ctx, userID, payload.ChannelID, c.id)
		c.reportIfError(joinErr)

	case EventLeaveChannel:
		var payload ChannelPayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		c.reportIfError(c.router.LeaveChannel(c.id, payload.ChannelID))

	case EventSendMessage:
		var payload SendMessagePayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		c.reportIfError(c.router.SendMessage(ctx, c.id, payload.ChannelID, payload.Content))

	case EventTyping:
		var payload ChannelPayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		c.reportIfError(c.router.Typing(c.id, payload.ChannelID))

	case EventStopTyping:
		var payload ChannelPayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		c.reportIfError(c.router.StopTyping(c.id, payload.ChannelID))

	case EventKick:
		var payload KickPayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		userID, ok := c.router.Sessions().UserOf(c.id)
		if !ok {
			c.SendError(errs.NewError(errs.ErrUnauthorized))
			return
		}
		c.reportIfError(c.router.Kick(ctx, userID, payload.ChannelID, payload.UserID))

	case EventDeleteChannel:
		var payload ChannelPayload
		if !c.bindPayload(envelope.Payload, &payload) {
			return
		}
		userID, ok := c.router.Sessions().UserOf(c.id)
		if !ok {
			c.SendError(errs.NewError(errs.ErrUnauthorized))
			return
		}
		c.reportIfError(c.router.DeleteChannel(ctx, userID, payload.ChannelID))

	default:
		c.logger.Warn().Str("event_type", string(envelope.Type)).Msg("Client sent unsupported event type")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
	}
}

// bindPayload unmarshals an event payload, reporting a validation error to
// the sender on malformed input.
func (c *Client) bindPayload(raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid event payload")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return false
	}
	return true
}

// reportIfError forwards a router failure to this connection. Success sends
// nothing; confirmations arrive as regular broadcasts.
func (c *Client) reportIfError(customErr *errs.CustomError) {
	if customErr != nil {
		c.SendError(customErr)
	}
}

// WritePump handles writing frames from the Client.send channel to the
// WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.cleanupOnDisconnect()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one queued frame to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the
// connection heartbeat. Returns false if the WritePump loop should terminate
// due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// SendError constructs and sends an error event to this connection.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	ev := Event{
		Type:    EventError,
		Payload: ErrorPayload{Code: code, Message: message},
	}

	data, marshalErr := ev.Marshal()
	if marshalErr != nil {
		c.logger.Error().Err(marshalErr).Msg("Failed to build error event")
		return
	}

	if !c.Send(data) {
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping error event")
	}
}
