package guest

import (
	"testing"

	"github.com/mosaicnetworks/graphshare/src/common"
	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorConsumerIdempotent(t *testing.T) {
	logger := common.NewTestEntry(t, common.TestLogLevel)
	m := NewMirrorConsumer(graph.NewStore(logger), logger)

	snapshot := protocol.GraphSnapshot{
		Version: protocol.SnapshotVersion,
		Entities: map[string]graph.Entity{
			"a": {"id": "a", "title": "A"},
			"b": {"id": "b", "title": "B"},
		},
		Assets: map[string]protocol.AssetRef{
			"images/a.png": {Path: "images/a.png", Entity: "a"},
		},
		SharedMode: true,
	}

	assert.False(t, m.Synced())

	for i := 0; i < 2; i++ {
		m.ApplySnapshot(snapshot)
		m.ApplyUpdate(graph.Entity{"id": "a", "title": "A2"})
		m.ApplyBatchUpdate(map[string]graph.Entity{"b": {"color": "red"}, "c": {"title": "C"}})
		m.ApplyDelete("c")
		m.ApplyDelete("c")
	}

	state := m.Store().State()
	assert.True(t, m.Synced())
	assert.True(t, state.SharedMode)
	require.Len(t, state.Entities, 2)
	assert.Equal(t, graph.Entity{"id": "a", "title": "A2"}, state.Entities["a"])
	assert.Equal(t, graph.Entity{"id": "b", "title": "B", "color": "red"}, state.Entities["b"])
	assert.Contains(t, m.Assets(), "images/a.png")

	// a second snapshot replaces, it does not merge
	m.ApplySnapshot(protocol.GraphSnapshot{
		Version:  protocol.SnapshotVersion,
		Entities: map[string]graph.Entity{"z": {"id": "z"}},
	})
	state = m.Store().State()
	require.Len(t, state.Entities, 1)
	assert.Contains(t, state.Entities, "z")
	assert.Empty(t, m.Assets())
}

func TestConsumerFuncsNil(t *testing.T) {
	var c Consumer = ConsumerFuncs{}
	c.ApplySnapshot(protocol.GraphSnapshot{})
	c.ApplyUpdate(graph.Entity{"id": "a"})
	c.ApplyDelete("a")
	c.ApplyBatchUpdate(nil)

	var updated string
	c = ConsumerFuncs{OnUpdate: func(e graph.Entity) { updated = e.ID() }}
	c.ApplyUpdate(graph.Entity{"id": "a"})
	assert.Equal(t, "a", updated)
}
