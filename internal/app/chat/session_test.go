package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSink is a minimal Sink for registry tests.
type stubSink struct {
	id string
}

func (s *stubSink) ID() string           { return s.id }
func (s *stubSink) Send(data []byte) bool { return true }

func TestAttachDetachRefcountedPresence(t *testing.T) {
	r := NewSessionRegistry()

	r.Register(&stubSink{id: "c1"})
	r.Register(&stubSink{id: "c2"})
	r.Register(&stubSink{id: "c3"})

	wentOnline, err := r.Attach("c1", "u1", "alice")
	require.NoError(t, err)
	assert.True(t, wentOnline, "first connection must flip the user online")

	wentOnline, err = r.Attach("c2", "u1", "alice")
	require.NoError(t, err)
	assert.False(t, wentOnline, "second tab must not re-announce online")

	wentOnline, err = r.Attach("c3", "u1", "alice")
	require.NoError(t, err)
	assert.False(t, wentOnline)

	assert.True(t, r.IsOnline("u1"))
	assert.Len(t, r.ConnectionsFor("u1"), 3)

	userID, wentOffline := r.Detach("c1")
	assert.Equal(t, "u1", userID)
	assert.False(t, wentOffline)

	userID, wentOffline = r.Detach("c2")
	assert.Equal(t, "u1", userID)
	assert.False(t, wentOffline)
	assert.True(t, r.IsOnline("u1"), "user stays online until the last tab closes")

	userID, wentOffline = r.Detach("c3")
	assert.Equal(t, "u1", userID)
	assert.True(t, wentOffline, "last connection must flip the user offline")
	assert.False(t, r.IsOnline("u1"))
}

func TestDetachIsIdempotent(t *testing.T) {
	r := NewSessionRegistry()

	r.Register(&stubSink{id: "c1"})
	_, err := r.Attach("c1", "u1", "alice")
	require.NoError(t, err)

	userID, wentOffline := r.Detach("c1")
	assert.Equal(t, "u1", userID)
	assert.True(t, wentOffline)

	// Redundant detaches report nothing and never underflow.
	userID, wentOffline = r.Detach("c1")
	assert.Empty(t, userID)
	assert.False(t, wentOffline)

	userID, wentOffline = r.Detach("never-registered")
	assert.Empty(t, userID)
	assert.False(t, wentOffline)
}

func TestAttachRejectsRebindToOtherUser(t *testing.T) {
	r := NewSessionRegistry()

	r.Register(&stubSink{id: "c1"})

	_, err := r.Attach("c1", "u1", "alice")
	require.NoError(t, err)

	// Same user again is a harmless no-op.
	wentOnline, err := r.Attach("c1", "u1", "alice")
	require.NoError(t, err)
	assert.False(t, wentOnline)

	// A different user is a protocol violation; the binding is unchanged.
	_, err = r.Attach("c1", "u2", "bob")
	assert.ErrorIs(t, err, ErrConnBoundToOtherUser)

	userID, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
}

func TestAttachUnknownConnectionFails(t *testing.T) {
	r := NewSessionRegistry()

	_, err := r.Attach("ghost", "u1", "alice")
	assert.Error(t, err)
	assert.False(t, r.IsOnline("u1"))
}

func TestOnlineUserIDsAndAuthenticatedSinks(t *testing.T) {
	r := NewSessionRegistry()

	r.Register(&stubSink{id: "c1"})
	r.Register(&stubSink{id: "c2"})
	r.Register(&stubSink{id: "anon"})

	_, err := r.Attach("c1", "u1", "alice")
	require.NoError(t, err)
	_, err = r.Attach("c2", "u2", "bob")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"u1", "u2"}, r.OnlineUserIDs())
	assert.Len(t, r.AuthenticatedSinks(), 2, "anonymous connections are excluded from presence broadcasts")

	name, ok := r.UsernameOf("u2")
	require.True(t, ok)
	assert.Equal(t, "bob", name)
}

func TestRegistryConcurrentAttachDetach(t *testing.T) {
	r := NewSessionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		connID := "c" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		r.Register(&stubSink{id: connID})

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = r.Attach(id, "u1", "alice")
			r.Detach(id)
		}(connID)
	}
	wg.Wait()

	assert.False(t, r.IsOnline("u1"), "refcount must return to zero")
}
