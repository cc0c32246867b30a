/*
Package chat contains the realtime core of the group-chat service.

This file defines the Router, which consumes inbound client events and
persistence-confirmed mutations, decides the recipient set per event, and
emits outbound events preserving per-channel order. The router exclusively
owns the session registry, the membership index, and the typing tracker; the
gateway never touches them directly.
*/
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rtchat/internal/pkg/errs"
	"rtchat/internal/pkg/logx"
)

const (
	// MaxContentBytes caps the size of a single message's content.
	MaxContentBytes = 5000

	// opTimeout bounds every call into the persistence collaborator. When it
	// fires, the operation fails retryable and the channel domain is released.
	opTimeout = 5 * time.Second
)

// Router is the event core. Mutations to a single channel's state are
// serialized through a per-channel mutation domain; independent channels
// proceed in parallel. In-memory indexes are only mutated after the
// persistence call for the operation has succeeded, and fan-out only happens
// after the durable write (no optimistic broadcast).
type Router struct {
	store  Store
	tokens TokenService

	sessions   *SessionRegistry
	membership *MembershipIndex
	typing     *TypingTracker

	// domainMu guards the lazily-created per-channel mutation locks.
	domainMu sync.Mutex
	domains  map[string]*sync.Mutex

	logger zerolog.Logger
}

// NewRouter constructs a Router wired to its two external collaborators.
func NewRouter(store Store, tokens TokenService) *Router {
	routerLogger := logx.Logger().With().Str("component", "Router").Logger()

	return &Router{
		store:      store,
		tokens:     tokens,
		sessions:   NewSessionRegistry(),
		membership: NewMembershipIndex(),
		typing:     NewTypingTracker(),
		domains:    make(map[string]*sync.Mutex),
		logger:     routerLogger,
	}
}

// Sessions exposes read access to the session registry for the HTTP surface
// (online flags in user listings). Mutation stays router-internal.
func (rt *Router) Sessions() *SessionRegistry {
	return rt.sessions
}

// Shutdown stops the router's background work.
func (rt *Router) Shutdown() {
	rt.typing.Stop()
}

// lockChannel acquires the mutation domain for a channel id and returns the
// release function.
func (rt *Router) lockChannel(channelID string) func() {
	rt.domainMu.Lock()
	l, ok := rt.domains[channelID]
	if !ok {
		l = &sync.Mutex{}
		rt.domains[channelID] = l
	}
	rt.domainMu.Unlock()

	l.Lock()
	return l.Unlock
}

// dropDomain discards the mutation lock of a deleted channel.
func (rt *Router) dropDomain(channelID string) {
	rt.domainMu.Lock()
	delete(rt.domains, channelID)
	rt.domainMu.Unlock()
}

// boundedCtx derives the bounded-timeout context used for collaborator calls.
func boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// mapStoreErr converts a Store failure into the typed error surfaced to the
// originating connection. Unknown failures count as dependency errors: the
// operation aborted with no partial state change and may be retried.
func mapStoreErr(err error) *errs.CustomError {
	switch {
	case errors.Is(err, ErrNotFound):
		return errs.NewError(errs.ErrChannelNotFound)
	default:
		return errs.NewError(errs.ErrDependencyUnavailable)
	}
}

// Connect records a new anonymous transport connection.
func (rt *Router) Connect(sink Sink) {
	rt.sessions.Register(sink)
	rt.logger.Debug().Str("conn_id", sink.ID()).Msg("Connection registered.")
}

// Authenticate binds a connection to the user identified by the token. On
// failure the connection stays anonymous and only the sender learns about it.
func (rt *Router) Authenticate(ctx context.Context, connID, token string) *errs.CustomError {
	userID, username, err := rt.tokens.VerifyToken(token)
	if err != nil {
		rt.logger.Warn().Str("conn_id", connID).Err(err).Msg("Token verification failed.")
		return errs.NewError(errs.ErrUnauthorized)
	}

	wentOnline, err := rt.sessions.Attach(connID, userID, username)
	if err != nil {
		rt.logger.Warn().Str("conn_id", connID).Str("user_id", userID).Err(err).Msg("Attach rejected.")
		return errs.NewError(errs.ErrAlreadyAuthenticated)
	}

	rt.logger.Info().Str("conn_id", connID).Str("user_id", userID).Bool("went_online", wentOnline).Msg("Connection authenticated.")

	if wentOnline {
		rt.broadcastOnlineUsers()
	}

	return nil
}

// AnnounceOnline handles the explicit post-auth presence announce: it pushes
// the current online-user set to every authenticated connection.
func (rt *Router) AnnounceOnline(connID string) *errs.CustomError {
	if _, ok := rt.sessions.UserOf(connID); !ok {
		return errs.NewError(errs.ErrUnauthorized)
	}

	rt.broadcastOnlineUsers()
	return nil
}

// JoinChannel subscribes an authenticated connection to a channel it is
// already a durable member of, then broadcasts a fresh snapshot to the
// channel's subscribers so member lists stay live. Non-members must use
// RequestJoin instead.
func (rt *Router) JoinChannel(ctx context.Context, connID, channelID string) *errs.CustomError {
	userID, ok := rt.sessions.UserOf(connID)
	if !ok {
		return errs.NewError(errs.ErrUnauthorized)
	}

	unlock := rt.lockChannel(channelID)
	defer unlock()

	cctx, cancel := boundedCtx(ctx)
	snapshot, err := rt.store.GetChannel(cctx, channelID)
	cancel()
	if err != nil {
		return mapStoreErr(err)
	}

	rt.membership.SetMembers(channelID, snapshot.MemberIDs())

	if !rt.membership.IsMember(channelID, userID) {
		return errs.NewError(errs.ErrNotChannelMember)
	}

	rt.membership.Subscribe(connID, channelID)
	rt.logger.Info().Str("conn_id", connID).Str("user_id", userID).Str("channel_id", channelID).Msg("Connection subscribed to channel.")

	rt.broadcastToSubscribers(channelID, Event{
		Type:    EventChannelUpdated,
		Payload: ChannelUpdatedPayload{Channel: snapshot},
	})

	return nil
}

// RequestJoin performs the persistence-level member add for a user who is not
// yet a durable member, then subscribes the originating connection (when the
// request arrived over a socket) and broadcasts the updated snapshot. Joining
// a channel the user already belongs to degrades to a plain subscribe.
func (rt *Router) RequestJoin(ctx context.Context, userID, channelID, connID string) (ChannelSnapshot, *errs.CustomError) {
	unlock := rt.lockChannel(channelID)
	defer unlock()

	cctx, cancel := boundedCtx(ctx)
	snapshot, err := rt.store.AddMember(cctx, channelID, userID)
	cancel()
	if err != nil {
		return ChannelSnapshot{}, mapStoreErr(err)
	}

	rt.membership.SetMembers(channelID, snapshot.MemberIDs())

	if connID != "" {
		rt.membership.Subscribe(connID, channelID)
	}

	rt.logger.Info().Str("user_id", userID).Str("channel_id", channelID).Msg("User joined channel.")

	rt.broadcastToSubscribers(channelID, Event{
		Type:    EventChannelUpdated,
		Payload: ChannelUpdatedPayload{Channel: snapshot},
	})

	return snapshot, nil
}

// LeaveChannel removes the connection from the channel's broadcast room.
// Durable membership is untouched; see LeaveDurable.
func (rt *Router) LeaveChannel(connID, channelID string) *errs.CustomError {
	userID, ok := rt.sessions.UserOf(connID)
	if !ok {
		return errs.NewError(errs.ErrUnauthorized)
	}

	rt.membership.Unsubscribe(connID, channelID)
	rt.clearTypingAndNotify(channelID, userID)

	return nil
}

// LeaveDurable removes the user's persisted membership, unsubscribes all of
// the user's connections, and broadcasts the updated snapshot to the
// remaining subscribers. The creator cannot leave: ownership never transfers,
// so the creator deletes the channel instead.
func (rt *Router) LeaveDurable(ctx context.Context, userID, channelID string) *errs.CustomError {
	unlock := rt.lockChannel(channelID)
	defer unlock()

	cctx, cancel := boundedCtx(ctx)
	current, err := rt.store.GetChannel(cctx, channelID)
	cancel()
	if err != nil {
		return mapStoreErr(err)
	}

	if current.CreatorID == userID {
		return errs.NewError(errs.ErrCreatorCannotLeave)
	}

	cctx, cancel = boundedCtx(ctx)
	snapshot, err := rt.store.RemoveMember(cctx, channelID, userID)
	cancel()
	if err != nil {
		return mapStoreErr(err)
	}

	rt.membership.SetMembers(channelID, snapshot.MemberIDs())
	rt.unsubscribeUserConns(userID, channelID)
	rt.typing.ClearTyping(channelID, userID)

	rt.logger.Info().Str("user_id", userID).Str("channel_id", channelID).Msg("User left channel.")

	rt.broadcastToSubscribers(channelID, Event{
		Type:    EventChannelUpdated,
		Payload: ChannelUpdatedPayload{Channel: snapshot},
	})

	return nil
}

// SendMessage validates, persists, and fans a message out to every online
// member's connections. The durable write happens before any broadcast, under
// the channel's mutation domain, so recipients observe messages in persistence
// order.
func (rt *Router) SendMessage(ctx context.Context, connID, channelID, content string) *errs.CustomError {
	userID, ok := rt.sessions.UserOf(connID)
	if !ok {
		return errs.NewError(errs.ErrUnauthorized)
	}

	if !rt.membership.IsSubscribed(connID, channelID) {
		return errs.NewError(errs.ErrNotSubscribed)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return errs.NewError(errs.ErrMessageEmpty)
	}
	if len(content) > MaxContentBytes {
		return errs.NewError(errs.ErrMessageTooLong)
	}

	unlock := rt.lockChannel(channelID)
	defer unlock()

	if !rt.membership.IsMember(channelID, userID) {
		return errs.NewError(errs.ErrNotChannelMember)
	}

	cctx, cancel := boundedCtx(ctx)
	message, err := rt.store.AppendMessage(cctx, channelID, userID, content)
	cancel()
	if err != nil {
		return mapStoreErr(err)
	}

	rt.broadcastToOnlineMembers(channelID, "", Event{
		Type:    EventReceiveMessage,
		Payload: message,
	})

	return nil
}

// Typing refreshes the sender's typing entry and notifies the other online
// members of the channel, each on all of their connections. The sender is
// excluded: their own client already knows.
func (rt *Router) Typing(connID, channelID string) *errs.CustomError {
	userID, ok := rt.sessions.UserOf(connID)
	if !ok {
		return errs.NewError(errs.ErrUnauthorized)
	}
	if !rt.membership.IsSubscribed(connID, channelID) {
		return errs.NewError(errs.ErrNotSubscribed)
	}

	username, _ := rt.sessions.UsernameOf(userID)

	unlock := rt.lockChannel(channelID)
	defer unlock()

	rt.typing.SetTyping(channelID, userID, username, TypingTTL)
	rt.broadcastTyping(channelID, userID)

	return nil
}

// StopTyping clears the sender's typing entry and notifies the other online
// members when the entry actually existed.
func (rt *Router) StopTyping(connID, channelID string) *errs.CustomError {
	userID, ok := rt.sessions.UserOf(connID)
	if !ok {
		return errs.NewError(errs.ErrUnauthorized)
	}
	if !rt.membership.IsSubscribed(connID, channelID) {
		return errs.NewError(errs.ErrNotSubscribed)
	}

	unlock := rt.lockChannel(channelID)
	defer unlock()

	rt.clearTypingAndNotifyLocked(channelID, userID)

	return nil
}

// Kick removes a member from the channel. Only the channel creator may kick,
// and the check runs against the persisted creator field, never the cached
// snapshot, so stale caches cannot escalate privileges.
func (rt *Router) Kick(ctx context.Context, invokerID, channelID, targetID string) *errs.CustomError {
	unlock := rt.lockChannel(channelID)
	defer unlock()

	cctx, cancel := boundedCtx(ctx)
	current, err := rt.store.GetChannel(cctx, channelID)
	cancel()
	if err != nil {
		return mapStoreErr(err)
	}

	if current.CreatorID != invokerID {
		return errs.NewError(errs.ErrNotChannelCreator)
	}
	if targetID == current.CreatorID {
		return errs.NewError(errs.ErrCreatorCannotLeave)
	}

	cctx, cancel = boundedCtx(ctx)
	snapshot, err := rt.store.RemoveMember(cctx, channelID, targetID)
	cancel()
	if err != nil {
		return mapStoreErr(err)
	}

	rt.membership.SetMembers(channelID, snapshot.MemberIDs())
	rt.unsubscribeUserConns(targetID, channelID)
	rt.typing.ClearTyping(channelID, targetID)

	rt.logger.Info().Str("invoker_id", invokerID).Str("target_id", targetID).Str("channel_id", channelID).Msg("Member kicked from channel.")

	rt.broadcastToSubscribers(channelID, Event{
		Type:    EventChannelUpdated,
		Payload: ChannelUpdatedPayload{Channel: snapshot},
	})

	return nil
}

// DeleteChannel deletes the channel for its creator: persist the deletion,
// purge the in-memory index, then notify every former subscriber so the
// gateway drops their room subscriptions.
func (rt *Router) DeleteChannel(ctx context.Context, invokerID, channelID string) *errs.CustomError {
	unlock := rt.lockChannel(channelID)

	cctx, cancel := boundedCtx(ctx)
	current, err := rt.store.GetChannel(cctx, channelID)
	cancel()
	if err != nil {
		unlock()
		return mapStoreErr(err)
	}

	if current.CreatorID != invokerID {
		unlock()
		return errs.NewError(errs.ErrNotChannelCreator)
	}

	cctx, cancel = boundedCtx(ctx)
	err = rt.store.DeleteChannel(cctx, channelID)
	cancel()
	if err != nil {
		unlock()
		return mapStoreErr(err)
	}

	subscriberConns := rt.membership.SubscribersOf(channelID)
	rt.membership.RecordChannelDeleted(channelID)
	rt.typing.ClearChannel(channelID)

	unlock()
	rt.dropDomain(channelID)

	rt.logger.Info().Str("invoker_id", invokerID).Str("channel_id", channelID).Msg("Channel deleted.")

	rt.deliver(Event{
		Type:    EventChannelDeleted,
		Payload: ChannelDeletedPayload{ChannelID: channelID},
	}, rt.sinksForConns(subscriberConns))

	return nil
}

// ChannelCreated seeds the membership cache for a channel that was just
// persisted via the HTTP surface, keeping the index consistent with the
// persisted truth.
func (rt *Router) ChannelCreated(snapshot ChannelSnapshot) {
	rt.membership.SetMembers(snapshot.ID, snapshot.MemberIDs())
}

// Disconnect runs the transport-level cleanup for a closed connection:
// unsubscribe from every room, clear typing entries, release the presence
// reference, and broadcast the offline transition when it was the user's last
// connection. Pure in-memory removal; it never fails.
func (rt *Router) Disconnect(connID string) {
	channels := rt.membership.DropConn(connID)
	userID, wentOffline := rt.sessions.Detach(connID)

	if userID != "" {
		for _, channelID := range channels {
			rt.clearTypingAndNotify(channelID, userID)
		}
	}

	rt.logger.Info().Str("conn_id", connID).Str("user_id", userID).Bool("went_offline", wentOffline).Msg("Connection cleaned up.")

	if wentOffline {
		rt.broadcastOnlineUsers()
	}
}

// clearTypingAndNotify clears a typing entry under the channel's domain and,
// when one existed, pushes the refreshed typing set to the other members.
func (rt *Router) clearTypingAndNotify(channelID, userID string) {
	unlock := rt.lockChannel(channelID)
	defer unlock()

	rt.clearTypingAndNotifyLocked(channelID, userID)
}

func (rt *Router) clearTypingAndNotifyLocked(channelID, userID string) {
	if rt.typing.ClearTyping(channelID, userID) {
		rt.broadcastTyping(channelID, userID)
	}
}

// broadcastTyping pushes the channel's current typing usernames to every
// online member except the acting user.
func (rt *Router) broadcastTyping(channelID, actingUserID string) {
	rt.broadcastToOnlineMembers(channelID, actingUserID, Event{
		Type: EventUserTyping,
		Payload: UserTypingPayload{
			ChannelID:       channelID,
			TypingUsernames: rt.typing.TypingUsers(channelID),
		},
	})
}

// broadcastOnlineUsers pushes the online-user set to every authenticated
// connection. Best effort: a race with a rapid reconnect can cause a flicker
// but never a stuck state, because presence is reference-counted.
func (rt *Router) broadcastOnlineUsers() {
	rt.deliver(Event{
		Type:    EventOnlineUsers,
		Payload: OnlineUsersPayload{OnlineUserIDs: rt.sessions.OnlineUserIDs()},
	}, rt.sessions.AuthenticatedSinks())
}

// broadcastToSubscribers delivers an event to the connections subscribed to
// the channel's room.
func (rt *Router) broadcastToSubscribers(channelID string, ev Event) {
	rt.deliver(ev, rt.sinksForConns(rt.membership.SubscribersOf(channelID)))
}

// broadcastToOnlineMembers delivers an event to all live connections of the
// channel's online members, excluding excludeUserID when non-empty. This is
// member-based fan-out, not room-based: membership may include users whose
// connections never joined the room.
func (rt *Router) broadcastToOnlineMembers(channelID, excludeUserID string, ev Event) {
	var sinks []Sink
	for _, memberID := range rt.membership.MembersOf(channelID) {
		if memberID == excludeUserID {
			continue
		}
		sinks = append(sinks, rt.sessions.ConnectionsFor(memberID)...)
	}
	rt.deliver(ev, sinks)
}

// unsubscribeUserConns drops all of the user's connections from the channel's
// broadcast room. Used after a persisted leave or kick.
func (rt *Router) unsubscribeUserConns(userID, channelID string) {
	for _, sink := range rt.sessions.ConnectionsFor(userID) {
		rt.membership.Unsubscribe(sink.ID(), channelID)
	}
}

// sinksForConns resolves connection ids to their live sinks, skipping
// connections that disappeared in the meantime.
func (rt *Router) sinksForConns(connIDs []string) []Sink {
	sinks := make([]Sink, 0, len(connIDs))
	for _, id := range connIDs {
		if sink, ok := rt.sessions.SinkOf(id); ok {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// deliver marshals the event once and enqueues the bytes on every recipient.
// A full queue drops the frame for that connection only; the write pump will
// tear the connection down if it stays unresponsive.
func (rt *Router) deliver(ev Event, sinks []Sink) {
	if len(sinks) == 0 {
		return
	}

	data, err := ev.Marshal()
	if err != nil {
		rt.logger.Error().Err(err).Str("event_type", string(ev.Type)).Msg("Failed to marshal outbound event.")
		return
	}

	for _, sink := range sinks {
		if !sink.Send(data) {
			rt.logger.Warn().Str("conn_id", sink.ID()).Str("event_type", string(ev.Type)).Msg("Recipient queue full, frame dropped.")
		}
	}
}
