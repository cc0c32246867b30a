/*
Package chat contains the realtime core of the group-chat service.

This file defines the TypingTracker, the only component with time-based state.
Entries expire on their own so a lost stop-typing event can never leave a user
"typing" forever. Expired entries are purged eagerly by a sweep ticker and
lazily on every read, so an entry is never reported past its deadline.
*/
package chat

import (
	"sort"
	"sync"
	"time"
)

const (
	// TypingTTL is how long a typing entry lives without a refresh. Clients
	// debounce at 1.5s, so 2s covers one missed refresh.
	TypingTTL = 2 * time.Second

	// typingSweepInterval bounds how long an expired entry can occupy memory.
	typingSweepInterval = 500 * time.Millisecond
)

// typingEntry records who is typing and until when. The username is cached so
// the broadcast step needs no lookup.
type typingEntry struct {
	username string
	deadline time.Time
}

// TypingTracker owns the per-channel sets of currently-typing users.
type TypingTracker struct {
	mu sync.Mutex

	// channels maps channel id to user id to the typing entry.
	channels map[string]map[string]typingEntry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTypingTracker constructs a tracker and starts its background sweep loop.
func NewTypingTracker() *TypingTracker {
	t := &TypingTracker{
		channels: make(map[string]map[string]typingEntry),
		stop:     make(chan struct{}),
	}

	go t.runSweepLoop()

	return t
}

// Stop terminates the sweep loop. Safe to call more than once.
func (t *TypingTracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

// SetTyping adds or refreshes the entry for (channel, user) with expiry at now+ttl.
func (t *TypingTracker) SetTyping(channelID, userID, username string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.channels[channelID]
	if entries == nil {
		entries = make(map[string]typingEntry)
		t.channels[channelID] = entries
	}
	entries[userID] = typingEntry{
		username: username,
		deadline: time.Now().Add(ttl),
	}
}

// ClearTyping removes the entry immediately (explicit stop, leave, kick, or
// disconnect). Reports whether an entry was actually removed so the caller
// can skip a redundant broadcast.
func (t *TypingTracker) ClearTyping(channelID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.channels[channelID]
	if !ok {
		return false
	}
	if _, ok := entries[userID]; !ok {
		return false
	}

	delete(entries, userID)
	if len(entries) == 0 {
		delete(t.channels, channelID)
	}
	return true
}

// ClearChannel drops all entries for a deleted channel.
func (t *TypingTracker) ClearChannel(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.channels, channelID)
}

// TypingUsers returns the usernames currently typing in the channel, purging
// expired entries as it reads. The result is sorted for stable output.
func (t *TypingTracker) TypingUsers(channelID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.channels[channelID]
	if !ok {
		return []string{}
	}

	now := time.Now()
	usernames := make([]string, 0, len(entries))
	for userID, entry := range entries {
		if now.After(entry.deadline) {
			delete(entries, userID)
			continue
		}
		usernames = append(usernames, entry.username)
	}
	if len(entries) == 0 {
		delete(t.channels, channelID)
	}

	sort.Strings(usernames)
	return usernames
}

// runSweepLoop periodically evicts expired entries so memory is bounded even
// for channels nobody reads.
func (t *TypingTracker) runSweepLoop() {
	ticker := time.NewTicker(typingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.stop:
			return
		}
	}
}

func (t *TypingTracker) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for channelID, entries := range t.channels {
		for userID, entry := range entries {
			if now.After(entry.deadline) {
				delete(entries, userID)
			}
		}
		if len(entries) == 0 {
			delete(t.channels, channelID)
		}
	}
}
