package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingUsersSortedAndScoped(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Stop()

	tr.SetTyping("ch1", "u2", "bob", time.Minute)
	tr.SetTyping("ch1", "u1", "alice", time.Minute)
	tr.SetTyping("ch2", "u3", "carol", time.Minute)

	assert.Equal(t, []string{"alice", "bob"}, tr.TypingUsers("ch1"))
	assert.Equal(t, []string{"carol"}, tr.TypingUsers("ch2"))
	assert.Empty(t, tr.TypingUsers("ch3"))
}

func TestTypingEntryExpiresWithoutStopEvent(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Stop()

	tr.SetTyping("ch1", "u1", "alice", 20*time.Millisecond)
	assert.Equal(t, []string{"alice"}, tr.TypingUsers("ch1"))

	time.Sleep(40 * time.Millisecond)

	assert.Empty(t, tr.TypingUsers("ch1"), "an expired entry must never be reported")
}

func TestSetTypingRefreshesDeadline(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Stop()

	tr.SetTyping("ch1", "u1", "alice", 30*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	tr.SetTyping("ch1", "u1", "alice", 30*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []string{"alice"}, tr.TypingUsers("ch1"), "a refresh extends the deadline")
}

func TestClearTypingReportsRemoval(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Stop()

	tr.SetTyping("ch1", "u1", "alice", time.Minute)

	assert.True(t, tr.ClearTyping("ch1", "u1"))
	assert.False(t, tr.ClearTyping("ch1", "u1"), "clearing an absent entry reports false")
	assert.False(t, tr.ClearTyping("ghost", "u1"))
	assert.Empty(t, tr.TypingUsers("ch1"))
}

func TestClearChannelDropsAllEntries(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Stop()

	tr.SetTyping("ch1", "u1", "alice", time.Minute)
	tr.SetTyping("ch1", "u2", "bob", time.Minute)

	tr.ClearChannel("ch1")
	assert.Empty(t, tr.TypingUsers("ch1"))
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Stop()

	tr.SetTyping("ch1", "u1", "alice", 10*time.Millisecond)
	tr.SetTyping("ch1", "u2", "bob", time.Minute)

	tr.sweep(time.Now().Add(20 * time.Millisecond))

	tr.mu.Lock()
	entries := tr.channels["ch1"]
	tr.mu.Unlock()
	assert.Len(t, entries, 1, "sweep keeps only live entries")
}
