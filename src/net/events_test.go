package net

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueOrder(t *testing.T) {
	q := newEventQueue()

	// the producer never blocks even if nobody reads yet
	for i := 0; i < 100; i++ {
		require.True(t, q.push(Event{Kind: EventData, Data: []byte{byte(i)}}))
	}
	require.True(t, q.push(Event{Kind: EventClose}))
	assert.False(t, q.push(Event{Kind: EventData}))

	var got []Event
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-q.events():
			if !ok {
				require.Len(t, got, 101)
				for i := 0; i < 100; i++ {
					assert.Equal(t, byte(i), got[i].Data[0])
				}
				assert.Equal(t, EventClose, got[100].Kind)
				return
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timeout waiting for events")
		}
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "open", EventOpen.String())
	assert.Equal(t, "close", EventClose.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
