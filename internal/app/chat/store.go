/*
Package chat contains the realtime core of the group-chat service: the session
registry, the channel membership index, the typing tracker, and the event router
that fans inbound events out to the correct set of live connections.

This file defines the contracts of the two external collaborators the core
consumes (persistence and authentication) and the snapshot types exchanged
across those boundaries.
*/
package chat

import (
	"context"
	"errors"
	"time"

	"rtchat/internal/app/user"
)

// Sentinel errors returned by Store implementations. The router maps them to
// typed client errors; anything else is treated as a dependency failure.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a uniqueness violation (duplicate username).
	ErrConflict = errors.New("record already exists")
)

// ChannelSnapshot is a read-only copy of a channel's persisted state, safe to
// hand to the gateway for serialization. The member slice is never shared with
// the index structures.
type ChannelSnapshot struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	CreatorID     string     `json:"creatorId"`
	Members       []user.Ref `json:"members"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastMessageAt time.Time  `json:"lastMessageAt"`
}

// MemberIDs returns the ids of the snapshot's members.
func (c ChannelSnapshot) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// Message is a persisted chat message with its server-assigned timestamp.
// Within a channel, timestamps are non-decreasing: the router serializes
// appends per channel.
type Message struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channelId"`
	SenderID   string    `json:"sender"`
	SenderName string    `json:"senderUsername"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is the persistence collaborator consumed by the event router. The
// router never mutates its in-memory indexes until a Store call has returned
// successfully, and it bounds every call with a timeout.
type Store interface {
	// GetUser returns the user reference for the given id.
	GetUser(ctx context.Context, id string) (user.Ref, error)

	// GetChannel returns the channel with its current member set.
	GetChannel(ctx context.Context, id string) (ChannelSnapshot, error)

	// AddMember adds the user to the channel's durable member set and returns
	// the updated snapshot. Adding an existing member is a no-op that still
	// returns the snapshot.
	AddMember(ctx context.Context, channelID, userID string) (ChannelSnapshot, error)

	// RemoveMember removes the user from the channel's durable member set and
	// returns the updated snapshot. Removing a non-member is a no-op.
	RemoveMember(ctx context.Context, channelID, userID string) (ChannelSnapshot, error)

	// DeleteChannel removes the channel, its memberships, and its messages.
	DeleteChannel(ctx context.Context, channelID string) error

	// AppendMessage persists a message and returns it with the server-assigned
	// id and timestamp.
	AppendMessage(ctx context.Context, channelID, senderID, content string) (Message, error)
}

// TokenService is the authentication collaborator: it turns a bearer token
// into a user identity or fails.
type TokenService interface {
	VerifyToken(token string) (userID string, username string, err error)
}
