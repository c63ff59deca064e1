package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesOnlyTargetUser(t *testing.T) {
	h := NewHub(4)
	alice := h.Subscribe("alice")
	defer alice.Close()
	bob := h.Subscribe("bob")
	defer bob.Close()

	n := h.Publish("alice", Event{ID: "1", Type: "message.created", Data: json.RawMessage(`{}`)})
	assert.Equal(t, 1, n)

	select {
	case ev := <-alice.Events():
		assert.Equal(t, "message.created", ev.Type)
	default:
		t.Fatal("alice did not receive the event")
	}

	select {
	case <-bob.Events():
		t.Fatal("bob received alice's event")
	default:
	}
}

func TestMultipleStreamsPerUser(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("alice")
	b := h.Subscribe("alice")
	assert.Equal(t, 2, h.Subscribers())

	assert.Equal(t, 2, h.Publish("alice", Event{ID: "1"}))

	a.Close()
	a.Close()
	assert.Equal(t, 1, h.Subscribers())
	assert.Equal(t, 1, h.Publish("alice", Event{ID: "2"}))

	b.Close()
	assert.Equal(t, 0, h.Subscribers())
	assert.Equal(t, 0, h.Publish("alice", Event{ID: "3"}))
}

func TestFullBufferDropsEvents(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe("alice")
	defer sub.Close()

	assert.Equal(t, 1, h.Publish("alice", Event{ID: "1"}))
	assert.Equal(t, 0, h.Publish("alice", Event{ID: "2"}))

	ev := <-sub.Events()
	assert.Equal(t, "1", ev.ID)
}

func TestCloseClosesChannel(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe("alice")
	sub.Close()

	_, ok := <-sub.Events()
	require.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	h := NewHub(1)
	a := h.Subscribe("alice")
	b := h.Subscribe("bob")

	h.CloseAll()
	assert.Equal(t, 0, h.Subscribers())

	_, ok := <-a.Events()
	assert.False(t, ok)
	_, ok = <-b.Events()
	assert.False(t, ok)

	// Closing again after CloseAll is harmless
	a.Close()
}
