/*
Package chat contains the realtime core of the group-chat service.

This file defines the wire-level event model of the connection gateway: the
inbound envelope clients send, the outbound events the router produces, and
their payload structures.
*/
package chat

import "encoding/json"

// EventType discriminates the JSON event envelope.
type EventType string

// Inbound event types accepted by the router.
const (
	EventAuthenticate  EventType = "authenticate"
	EventUserOnline    EventType = "user-online"
	EventJoinChannel   EventType = "join-channel"
	EventJoinRequest   EventType = "join-request"
	EventLeaveChannel  EventType = "leave-channel"
	EventSendMessage   EventType = "send-message"
	EventTyping        EventType = "typing"
	EventStopTyping    EventType = "stop-typing"
	EventKick          EventType = "kick"
	EventDeleteChannel EventType = "delete-channel"
)

// Outbound event types produced by the router for the gateway to deliver.
const (
	EventReceiveMessage EventType = "receive-message"
	EventChannelUpdated EventType = "channel-updated"
	EventChannelDeleted EventType = "channel-deleted"
	EventUserTyping     EventType = "user-typing"
	EventOnlineUsers    EventType = "update-online-users"
	EventError          EventType = "error"
)

// Envelope is the raw inbound frame: a type tag plus an opaque payload that is
// decoded according to the type.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound frame before serialization.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// Marshal serializes the event once; the same bytes are enqueued on every
// recipient connection during fan-out.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// AuthenticatePayload carries the bearer token binding a connection to a user.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// ChannelPayload is the shared payload of channel-scoped inbound events.
type ChannelPayload struct {
	ChannelID string `json:"channelId"`
}

// SendMessagePayload carries a new message for a channel.
type SendMessagePayload struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

// KickPayload names the channel and the member to remove.
type KickPayload struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

// ChannelUpdatedPayload carries a fresh channel snapshot after a membership change.
type ChannelUpdatedPayload struct {
	Channel ChannelSnapshot `json:"channel"`
}

// ChannelDeletedPayload notifies former subscribers that a channel is gone.
type ChannelDeletedPayload struct {
	ChannelID string `json:"channelId"`
}

// UserTypingPayload carries the current set of typing usernames for a channel.
type UserTypingPayload struct {
	ChannelID       string   `json:"channelId"`
	TypingUsernames []string `json:"typingUsernames"`
}

// OnlineUsersPayload carries the ids of all currently online users.
type OnlineUsersPayload struct {
	OnlineUserIDs []string `json:"onlineUserIds"`
}

// ErrorPayload is delivered to the originating connection only; errors never
// reach other connections.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
