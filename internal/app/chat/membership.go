/*
Package chat contains the realtime core of the group-chat service.

This file defines the MembershipIndex. It keeps two deliberately separate
mappings: the denormalized copy of each channel's durable member set
(refreshed from the persistence layer on every membership-changing
operation), and the transient subscriptions binding live connections to a
channel's broadcast room. A member may be offline and unsubscribed; a
subscribed connection always belongs to a member, enforced by the router
before Subscribe is called.
*/
package chat

import "sync"

// MembershipIndex owns the channel-to-members and connection-to-channels
// mappings. All operations are idempotent and total: unknown ids report
// absence instead of failing.
type MembershipIndex struct {
	mu sync.RWMutex

	// members maps channel id to the cached durable member id set.
	members map[string]map[string]struct{}

	// subsByChannel maps channel id to the connection ids subscribed to its room.
	subsByChannel map[string]map[string]struct{}

	// subsByConn maps connection id to the channel ids it is subscribed to.
	subsByConn map[string]map[string]struct{}
}

// NewMembershipIndex constructs an empty index.
func NewMembershipIndex() *MembershipIndex {
	return &MembershipIndex{
		members:       make(map[string]map[string]struct{}),
		subsByChannel: make(map[string]map[string]struct{}),
		subsByConn:    make(map[string]map[string]struct{}),
	}
}

// RecordJoin adds the user to the channel's cached member set. Joining twice
// is a no-op that still succeeds.
func (m *MembershipIndex) RecordJoin(channelID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.members[channelID]
	if set == nil {
		set = make(map[string]struct{})
		m.members[channelID] = set
	}
	set[userID] = struct{}{}
}

// RecordLeave removes the user from the channel's cached member set. Leaving
// as a non-member is a no-op that still succeeds.
func (m *MembershipIndex) RecordLeave(channelID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.members[channelID]; ok {
		delete(set, userID)
	}
}

// SetMembers replaces the cached member set with the persisted truth.
func (m *MembershipIndex) SetMembers(channelID string, userIDs []string) {
	set := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.members[channelID] = set
}

// MembersOf returns a copy of the channel's cached member id set. Unknown
// channels yield an empty set, not an error: the router validates channel
// existence against the persistence layer before relying on this.
func (m *MembershipIndex) MembersOf(channelID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.members[channelID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// IsMember reports whether the user is in the channel's cached member set.
func (m *MembershipIndex) IsMember(channelID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[channelID][userID]
	return ok
}

// HasChannel reports whether the index holds a cached member set for the channel.
func (m *MembershipIndex) HasChannel(channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[channelID]
	return ok
}

// RecordChannelDeleted purges the channel from the index, removing its member
// cache and every subscription to it. It returns the former member ids so the
// router can notify them.
func (m *MembershipIndex) RecordChannelDeleted(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.members[channelID]
	former := make([]string, 0, len(set))
	for id := range set {
		former = append(former, id)
	}
	delete(m.members, channelID)

	for connID := range m.subsByChannel[channelID] {
		delete(m.subsByConn[connID], channelID)
	}
	delete(m.subsByChannel, channelID)

	return former
}

// Subscribe adds the connection to the channel's broadcast room. Redundant
// subscribes are no-ops.
func (m *MembershipIndex) Subscribe(connID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byChannel := m.subsByChannel[channelID]
	if byChannel == nil {
		byChannel = make(map[string]struct{})
		m.subsByChannel[channelID] = byChannel
	}
	byChannel[connID] = struct{}{}

	byConn := m.subsByConn[connID]
	if byConn == nil {
		byConn = make(map[string]struct{})
		m.subsByConn[connID] = byConn
	}
	byConn[channelID] = struct{}{}
}

// Unsubscribe removes the connection from the channel's broadcast room.
// Always safe to call redundantly.
func (m *MembershipIndex) Unsubscribe(connID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsubscribeLocked(connID, channelID)
}

func (m *MembershipIndex) unsubscribeLocked(connID, channelID string) {
	if set, ok := m.subsByChannel[channelID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m.subsByChannel, channelID)
		}
	}
	if set, ok := m.subsByConn[connID]; ok {
		delete(set, channelID)
		if len(set) == 0 {
			delete(m.subsByConn, connID)
		}
	}
}

// IsSubscribed reports whether the connection has joined the channel's room.
func (m *MembershipIndex) IsSubscribed(connID, channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.subsByConn[connID][channelID]
	return ok
}

// SubscribersOf returns the connection ids subscribed to the channel's room.
func (m *MembershipIndex) SubscribersOf(channelID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.subsByChannel[channelID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// ChannelsOf returns the channel ids the connection is subscribed to.
func (m *MembershipIndex) ChannelsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.subsByConn[connID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// DropConn removes every subscription held by the connection and returns the
// channels it was subscribed to. Called exactly once per disconnect by the
// router's cleanup path; redundant calls are no-ops.
func (m *MembershipIndex) DropConn(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.subsByConn[connID]
	channels := make([]string, 0, len(set))
	for channelID := range set {
		channels = append(channels, channelID)
	}
	for _, channelID := range channels {
		m.unsubscribeLocked(connID, channelID)
	}
	return channels
}
