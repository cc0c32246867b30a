package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtchat/internal/app/user"
	"rtchat/internal/pkg/errs"
)

// fakeSink records every frame delivered to it.
type fakeSink struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (s *fakeSink) ID() string { return s.id }

func (s *fakeSink) Send(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return true
}

// eventsOf decodes the recorded frames and returns the payloads of the given type.
func (s *fakeSink) eventsOf(t *testing.T, eventType EventType) []json.RawMessage {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	var payloads []json.RawMessage
	for _, frame := range s.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		if env.Type == eventType {
			payloads = append(payloads, env.Payload)
		}
	}
	return payloads
}

// storedChannel is the fake store's channel record.
type storedChannel struct {
	name      string
	creatorID string
	members   map[string]user.Ref
}

// fakeStore is an in-memory Store with call counters and a switchable failure.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]user.Ref
	channels map[string]*storedChannel
	fail     error
	seq      int

	addCalls    int
	removeCalls int
	deleteCalls int
	appendCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]user.Ref),
		channels: make(map[string]*storedChannel),
	}
}

func (f *fakeStore) addUser(id, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = user.Ref{ID: id, Username: username}
}

func (f *fakeStore) addChannel(id, creatorID string, memberIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := &storedChannel{name: "channel-" + id, creatorID: creatorID, members: make(map[string]user.Ref)}
	for _, mid := range append([]string{creatorID}, memberIDs...) {
		ch.members[mid] = f.users[mid]
	}
	f.channels[id] = ch
}

func (f *fakeStore) snapshotLocked(id string) ChannelSnapshot {
	ch := f.channels[id]
	snapshot := ChannelSnapshot{ID: id, Name: ch.name, CreatorID: ch.creatorID}
	for _, ref := range ch.members {
		snapshot.Members = append(snapshot.Members, ref)
	}
	return snapshot
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (user.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return user.Ref{}, f.fail
	}
	ref, ok := f.users[id]
	if !ok {
		return user.Ref{}, ErrNotFound
	}
	return ref, nil
}

func (f *fakeStore) GetChannel(ctx context.Context, id string) (ChannelSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return ChannelSnapshot{}, f.fail
	}
	if _, ok := f.channels[id]; !ok {
		return ChannelSnapshot{}, ErrNotFound
	}
	return f.snapshotLocked(id), nil
}

func (f *fakeStore) AddMember(ctx context.Context, channelID, userID string) (ChannelSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.fail != nil {
		return ChannelSnapshot{}, f.fail
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return ChannelSnapshot{}, ErrNotFound
	}
	ch.members[userID] = f.users[userID]
	return f.snapshotLocked(channelID), nil
}

func (f *fakeStore) RemoveMember(ctx context.Context, channelID, userID string) (ChannelSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.fail != nil {
		return ChannelSnapshot{}, f.fail
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return ChannelSnapshot{}, ErrNotFound
	}
	delete(ch.members, userID)
	return f.snapshotLocked(channelID), nil
}

func (f *fakeStore) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.fail != nil {
		return f.fail
	}
	if _, ok := f.channels[channelID]; !ok {
		return ErrNotFound
	}
	delete(f.channels, channelID)
	return nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, channelID, senderID, content string) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	if f.fail != nil {
		return Message{}, f.fail
	}
	if _, ok := f.channels[channelID]; !ok {
		return Message{}, ErrNotFound
	}
	f.seq++
	return Message{
		ID:         fmt.Sprintf("m%d", f.seq),
		ChannelID:  channelID,
		SenderID:   senderID,
		SenderName: f.users[senderID].Username,
		Content:    content,
	}, nil
}

// fakeTokens maps "tok-<userID>" to the matching identity.
type fakeTokens struct {
	users map[string]user.Ref
}

func (f *fakeTokens) VerifyToken(token string) (string, string, error) {
	for id, ref := range f.users {
		if token == "tok-"+id {
			return id, ref.Username, nil
		}
	}
	return "", "", errors.New("invalid token")
}

func newTestRouter(t *testing.T, store *fakeStore) *Router {
	t.Helper()

	rt := NewRouter(store, &fakeTokens{users: store.users})
	t.Cleanup(rt.Shutdown)
	return rt
}

// authedSink connects a sink and authenticates it as the given user.
func authedSink(t *testing.T, rt *Router, connID, userID string) *fakeSink {
	t.Helper()

	sink := &fakeSink{id: connID}
	rt.Connect(sink)
	require.Nil(t, rt.Authenticate(context.Background(), connID, "tok-"+userID))
	return sink
}

func TestAuthenticateInvalidTokenKeepsConnAnonymous(t *testing.T) {
	store := newFakeStore()
	rt := newTestRouter(t, store)

	sink := &fakeSink{id: "c1"}
	rt.Connect(sink)

	customErr := rt.Authenticate(context.Background(), "c1", "garbage")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrUnauthorized, customErr.Code)

	_, ok := rt.Sessions().UserOf("c1")
	assert.False(t, ok)
}

func TestAuthenticateBroadcastsPresenceOncePerUser(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	rt := newTestRouter(t, store)

	first := authedSink(t, rt, "c1", "u1")
	assert.Len(t, first.eventsOf(t, EventOnlineUsers), 1, "first tab announces the user online")

	second := authedSink(t, rt, "c2", "u1")
	assert.Empty(t, second.eventsOf(t, EventOnlineUsers), "a second tab must not re-announce")

	rt.Disconnect("c1")
	assert.Len(t, second.eventsOf(t, EventOnlineUsers), 0, "user still online on the remaining tab")

	rt.Disconnect("c2")
	assert.False(t, rt.Sessions().IsOnline("u1"))
}

func TestJoinChannelRequiresDurableMembership(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1")
	rt := newTestRouter(t, store)

	outsider := authedSink(t, rt, "c2", "u2")

	customErr := rt.JoinChannel(context.Background(), "c2", "ch1")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotChannelMember, customErr.Code)
	assert.Empty(t, outsider.eventsOf(t, EventChannelUpdated))

	member := authedSink(t, rt, "c1", "u1")
	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))
	assert.Len(t, member.eventsOf(t, EventChannelUpdated), 1, "subscribers get the fresh snapshot")
}

func TestRequestJoinIsIdempotentAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1")
	rt := newTestRouter(t, store)

	creator := authedSink(t, rt, "c1", "u1")
	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))

	joiner := authedSink(t, rt, "c2", "u2")

	snapshot, customErr := rt.RequestJoin(context.Background(), "u2", "ch1", "c2")
	require.Nil(t, customErr)
	assert.ElementsMatch(t, []string{"u1", "u2"}, snapshot.MemberIDs())

	// Joining again degrades to a plain subscribe.
	_, customErr = rt.RequestJoin(context.Background(), "u2", "ch1", "c2")
	require.Nil(t, customErr)

	assert.GreaterOrEqual(t, len(creator.eventsOf(t, EventChannelUpdated)), 1)
	assert.GreaterOrEqual(t, len(joiner.eventsOf(t, EventChannelUpdated)), 1, "the joining connection is subscribed and notified")
}

func TestSendMessagePersistsBeforeFanOut(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1", "u2")
	rt := newTestRouter(t, store)

	alice := authedSink(t, rt, "c1", "u1")
	bobTab1 := authedSink(t, rt, "c2", "u2")
	bobTab2 := authedSink(t, rt, "c3", "u2")

	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))
	require.Nil(t, rt.JoinChannel(context.Background(), "c2", "ch1"))

	require.Nil(t, rt.SendMessage(context.Background(), "c1", "ch1", "hello"))
	require.Nil(t, rt.SendMessage(context.Background(), "c1", "ch1", "world"))

	assert.Equal(t, 2, store.appendCalls)

	for _, sink := range []*fakeSink{alice, bobTab1, bobTab2} {
		payloads := sink.eventsOf(t, EventReceiveMessage)
		require.Len(t, payloads, 2, "every online member's tab receives the message, sender included, subscribed or not")

		var first, second Message
		require.NoError(t, json.Unmarshal(payloads[0], &first))
		require.NoError(t, json.Unmarshal(payloads[1], &second))
		assert.Equal(t, "hello", first.Content)
		assert.Equal(t, "world", second.Content, "per-channel order equals persistence order")
		assert.Equal(t, "alice", first.SenderName)
	}
}

func TestSendMessageValidation(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addChannel("ch1", "u1")
	rt := newTestRouter(t, store)

	authedSink(t, rt, "c1", "u1")

	customErr := rt.SendMessage(context.Background(), "c1", "ch1", "hi")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotSubscribed, customErr.Code, "sending requires an active subscription")

	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))

	customErr = rt.SendMessage(context.Background(), "c1", "ch1", "   ")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrMessageEmpty, customErr.Code)

	long := make([]byte, MaxContentBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	customErr = rt.SendMessage(context.Background(), "c1", "ch1", string(long))
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrMessageTooLong, customErr.Code)

	assert.Equal(t, 0, store.appendCalls, "validation failures never reach the store")
}

func TestSendMessageStoreFailureAbortsWithoutBroadcast(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1", "u2")
	rt := newTestRouter(t, store)

	alice := authedSink(t, rt, "c1", "u1")
	bob := authedSink(t, rt, "c2", "u2")
	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))
	require.Nil(t, rt.JoinChannel(context.Background(), "c2", "ch1"))

	store.fail = errors.New("connection refused")

	customErr := rt.SendMessage(context.Background(), "c1", "ch1", "hello")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrDependencyUnavailable, customErr.Code)

	assert.Empty(t, alice.eventsOf(t, EventReceiveMessage))
	assert.Empty(t, bob.eventsOf(t, EventReceiveMessage), "no optimistic broadcast on a failed write")
}

func TestTypingFanOutExcludesSender(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1", "u2")
	rt := newTestRouter(t, store)

	alice := authedSink(t, rt, "c1", "u1")
	bobTab1 := authedSink(t, rt, "c2", "u2")
	bobTab2 := authedSink(t, rt, "c3", "u2")

	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))
	require.Nil(t, rt.JoinChannel(context.Background(), "c2", "ch1"))

	require.Nil(t, rt.Typing("c1", "ch1"))

	assert.Empty(t, alice.eventsOf(t, EventUserTyping), "the sender's own tabs are excluded")

	for _, sink := range []*fakeSink{bobTab1, bobTab2} {
		payloads := sink.eventsOf(t, EventUserTyping)
		require.Len(t, payloads, 1, "every tab of the other online members is notified")

		var payload UserTypingPayload
		require.NoError(t, json.Unmarshal(payloads[0], &payload))
		assert.Equal(t, []string{"alice"}, payload.TypingUsernames)
	}

	require.Nil(t, rt.StopTyping("c1", "ch1"))

	payloads := bobTab1.eventsOf(t, EventUserTyping)
	require.Len(t, payloads, 2)
	var payload UserTypingPayload
	require.NoError(t, json.Unmarshal(payloads[1], &payload))
	assert.Empty(t, payload.TypingUsernames, "stop-typing clears the set")
}

func TestKickIsCreatorOnlyAgainstPersistedCreator(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1", "u2")
	rt := newTestRouter(t, store)

	authedSink(t, rt, "c1", "u1")
	authedSink(t, rt, "c2", "u2")
	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))
	require.Nil(t, rt.JoinChannel(context.Background(), "c2", "ch1"))

	customErr := rt.Kick(context.Background(), "u2", "ch1", "u1")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotChannelCreator, customErr.Code)
	assert.Equal(t, 0, store.removeCalls, "a rejected kick never reaches the store")

	require.Nil(t, rt.Kick(context.Background(), "u1", "ch1", "u2"))
	assert.Equal(t, 1, store.removeCalls)

	// The kicked user's connection was silently unsubscribed; their next send
	// fails without any broadcast.
	customErr = rt.SendMessage(context.Background(), "c2", "ch1", "still here?")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotSubscribed, customErr.Code)
}

func TestKickingTheCreatorIsRejected(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addChannel("ch1", "u1")
	rt := newTestRouter(t, store)

	customErr := rt.Kick(context.Background(), "u1", "ch1", "u1")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrCreatorCannotLeave, customErr.Code)
}

func TestLeaveDurableCreatorMustDeleteInstead(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1", "u2")
	rt := newTestRouter(t, store)

	customErr := rt.LeaveDurable(context.Background(), "u1", "ch1")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrCreatorCannotLeave, customErr.Code)
	assert.Equal(t, 0, store.removeCalls)

	require.Nil(t, rt.LeaveDurable(context.Background(), "u2", "ch1"))
	assert.Equal(t, 1, store.removeCalls)
}

func TestDeleteChannelCreatorOnlyAndNotifiesSubscribers(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1", "u2")
	rt := newTestRouter(t, store)

	authedSink(t, rt, "c1", "u1")
	bob := authedSink(t, rt, "c2", "u2")
	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))
	require.Nil(t, rt.JoinChannel(context.Background(), "c2", "ch1"))

	customErr := rt.DeleteChannel(context.Background(), "u2", "ch1")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotChannelCreator, customErr.Code)
	assert.Equal(t, 0, store.deleteCalls)
	assert.Empty(t, bob.eventsOf(t, EventChannelDeleted), "a rejected delete broadcasts nothing")

	require.Nil(t, rt.DeleteChannel(context.Background(), "u1", "ch1"))
	assert.Equal(t, 1, store.deleteCalls)

	payloads := bob.eventsOf(t, EventChannelDeleted)
	require.Len(t, payloads, 1)
	var payload ChannelDeletedPayload
	require.NoError(t, json.Unmarshal(payloads[0], &payload))
	assert.Equal(t, "ch1", payload.ChannelID)

	// The channel is gone from the realtime index too.
	customErr = rt.SendMessage(context.Background(), "c2", "ch1", "hello?")
	require.NotNil(t, customErr)
}

func TestCreateJoinMessageScenario(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	rt := newTestRouter(t, store)

	alice := authedSink(t, rt, "c1", "u1")
	bob := authedSink(t, rt, "c2", "u2")

	// Channel created over HTTP; the handler seeds the router's cache.
	store.addChannel("ch1", "u1")
	snapshot, err := store.GetChannel(context.Background(), "ch1")
	require.NoError(t, err)
	rt.ChannelCreated(snapshot)

	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))

	_, customErr := rt.RequestJoin(context.Background(), "u2", "ch1", "c2")
	require.Nil(t, customErr)

	require.Nil(t, rt.SendMessage(context.Background(), "c2", "ch1", "hi alice"))

	require.Len(t, alice.eventsOf(t, EventReceiveMessage), 1)
	require.Len(t, bob.eventsOf(t, EventReceiveMessage), 1)
}

func TestDisconnectClearsTypingAndNotifies(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "alice")
	store.addUser("u2", "bob")
	store.addChannel("ch1", "u1", "u2")
	rt := newTestRouter(t, store)

	authedSink(t, rt, "c1", "u1")
	bob := authedSink(t, rt, "c2", "u2")
	require.Nil(t, rt.JoinChannel(context.Background(), "c1", "ch1"))
	require.Nil(t, rt.JoinChannel(context.Background(), "c2", "ch1"))

	require.Nil(t, rt.Typing("c1", "ch1"))
	require.Len(t, bob.eventsOf(t, EventUserTyping), 1)

	rt.Disconnect("c1")

	payloads := bob.eventsOf(t, EventUserTyping)
	require.Len(t, payloads, 2, "a disconnect clears the typing entry and notifies the rest")
	var payload UserTypingPayload
	require.NoError(t, json.Unmarshal(payloads[1], &payload))
	assert.Empty(t, payload.TypingUsernames)
}
