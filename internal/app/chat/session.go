/*
Package chat contains the realtime core of the group-chat service.

This file defines the SessionRegistry, which maps authenticated users to their
live connections and tracks online/offline transitions with reference-counted
presence. A user with three open tabs stays online until the last one closes.
*/
package chat

import (
	"errors"
	"sync"
)

// ErrConnBoundToOtherUser is returned when a connection that is already bound
// to one user attempts to authenticate as a different user. This is a protocol
// violation; the connection keeps its original binding.
var ErrConnBoundToOtherUser = errors.New("connection already bound to a different user")

// Sink is the delivery side of a live connection. Send must not block: it
// enqueues the frame and reports false when the connection's queue is full.
type Sink interface {
	ID() string
	Send(data []byte) bool
}

// session tracks one live transport connection. The user id is empty until
// the connection authenticates.
type session struct {
	sink     Sink
	userID   string
	username string
}

// SessionRegistry owns the connection-to-user mapping. All access is
// serialized internally; callers never see partial state.
type SessionRegistry struct {
	mu sync.RWMutex

	// conns maps connection id to its session, anonymous connections included.
	conns map[string]*session

	// userConns maps user id to that user's live connections. Presence count
	// for a user is len(userConns[id]); online iff count > 0.
	userConns map[string]map[string]Sink

	// usernames caches display names of users seen on this registry.
	usernames map[string]string
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		conns:     make(map[string]*session),
		userConns: make(map[string]map[string]Sink),
		usernames: make(map[string]string),
	}
}

// Register records an anonymous transport connection. Called by the gateway
// on transport connect, before any authenticate event.
func (r *SessionRegistry) Register(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[sink.ID()] = &session{sink: sink}
}

// Attach binds the connection to the given user and increments the user's
// presence count. It returns wentOnline=true when this is the user's first
// live connection. Re-attaching the same connection to the same user is a
// no-op; attaching to a different user fails with ErrConnBoundToOtherUser.
func (r *SessionRegistry) Attach(connID, userID, username string) (wentOnline bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.conns[connID]
	if !ok {
		return false, errors.New("unknown connection")
	}

	if sess.userID != "" {
		if sess.userID == userID {
			return false, nil
		}
		return false, ErrConnBoundToOtherUser
	}

	sess.userID = userID
	sess.username = username
	r.usernames[userID] = username

	conns := r.userConns[userID]
	if conns == nil {
		conns = make(map[string]Sink)
		r.userConns[userID] = conns
	}

	wentOnline = len(conns) == 0
	conns[connID] = sess.sink

	return wentOnline, nil
}

// Detach removes the connection and decrements its owner's presence count.
// It is idempotent: detaching an unknown or already-detached connection is a
// safe no-op and never underflows the count. wentOffline is true when this
// was the user's last live connection.
func (r *SessionRegistry) Detach(connID string) (userID string, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)

	if sess.userID == "" {
		return "", false
	}

	userID = sess.userID
	if conns, ok := r.userConns[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, userID)
			wentOffline = true
		}
	}

	return userID, wentOffline
}

// ConnectionsFor returns the live sinks for all of a user's connections,
// possibly empty. Used for fanning a channel event out to every tab.
func (r *SessionRegistry) ConnectionsFor(userID string) []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.userConns[userID]
	sinks := make([]Sink, 0, len(conns))
	for _, s := range conns {
		sinks = append(sinks, s)
	}
	return sinks
}

// IsOnline reports whether the user has at least one live connection.
func (r *SessionRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.userConns[userID]) > 0
}

// UserOf returns the user id bound to the connection, if authenticated.
func (r *SessionRegistry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.conns[connID]
	if !ok || sess.userID == "" {
		return "", false
	}
	return sess.userID, true
}

// UsernameOf returns the cached display name for a user id.
func (r *SessionRegistry) UsernameOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.usernames[userID]
	return name, ok
}

// SinkOf returns the live sink for a connection id, anonymous or not.
func (r *SessionRegistry) SinkOf(connID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return sess.sink, true
}

// OnlineUserIDs returns the ids of all users with presence count > 0.
func (r *SessionRegistry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.userConns))
	for id := range r.userConns {
		ids = append(ids, id)
	}
	return ids
}

// AuthenticatedSinks returns the sinks of every authenticated connection.
// Used for global presence broadcasts.
func (r *SessionRegistry) AuthenticatedSinks() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]Sink, 0, len(r.conns))
	for _, sess := range r.conns {
		if sess.userID != "" {
			sinks = append(sinks, sess.sink)
		}
	}
	return sinks
}
