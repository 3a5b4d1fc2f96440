package guest

import (
	"sync"

	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/sirupsen/logrus"
)

// Consumer applies the messages of a host to a local mirror of the graph.
// Messages are forwarded verbatim, so a Consumer must be idempotent: applying
// the same message twice must be harmless. Methods are called from a single
// goroutine, in the order the host sent the messages.
type Consumer interface {
	// ApplySnapshot replaces the whole mirror.
	ApplySnapshot(snapshot protocol.GraphSnapshot)
	// ApplyUpdate replaces one entity.
	ApplyUpdate(e graph.Entity)
	// ApplyDelete removes one entity.
	ApplyDelete(id string)
	// ApplyBatchUpdate merges partial entities.
	ApplyBatchUpdate(patches map[string]graph.Entity)
}

// ConsumerFuncs is a Consumer made of optional callbacks.
type ConsumerFuncs struct {
	OnSnapshot    func(protocol.GraphSnapshot)
	OnUpdate      func(graph.Entity)
	OnDelete      func(string)
	OnBatchUpdate func(map[string]graph.Entity)
}

// ApplySnapshot implements the Consumer interface.
func (c ConsumerFuncs) ApplySnapshot(snapshot protocol.GraphSnapshot) {
	if c.OnSnapshot != nil {
		c.OnSnapshot(snapshot)
	}
}

// ApplyUpdate implements the Consumer interface.
func (c ConsumerFuncs) ApplyUpdate(e graph.Entity) {
	if c.OnUpdate != nil {
		c.OnUpdate(e)
	}
}

// ApplyDelete implements the Consumer interface.
func (c ConsumerFuncs) ApplyDelete(id string) {
	if c.OnDelete != nil {
		c.OnDelete(id)
	}
}

// ApplyBatchUpdate implements the Consumer interface.
func (c ConsumerFuncs) ApplyBatchUpdate(patches map[string]graph.Entity) {
	if c.OnBatchUpdate != nil {
		c.OnBatchUpdate(patches)
	}
}

// MirrorConsumer applies the messages of a host to a graph.Store, and keeps
// the asset index of the last snapshot.
type MirrorConsumer struct {
	store *graph.Store

	mu       sync.RWMutex
	assets   map[string]protocol.AssetRef
	snapshot bool

	logger *logrus.Entry
}

// NewMirrorConsumer creates a MirrorConsumer writing to store.
func NewMirrorConsumer(store *graph.Store, logger *logrus.Entry) *MirrorConsumer {
	return &MirrorConsumer{
		store:  store,
		assets: make(map[string]protocol.AssetRef),
		logger: logger,
	}
}

// Store returns the mirror.
func (m *MirrorConsumer) Store() *graph.Store {
	return m.store
}

// Assets returns a copy of the asset index of the last snapshot.
func (m *MirrorConsumer) Assets() map[string]protocol.AssetRef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]protocol.AssetRef, len(m.assets))
	for p, a := range m.assets {
		res[p] = a
	}
	return res
}

// Synced reports whether a snapshot was applied.
func (m *MirrorConsumer) Synced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// ApplySnapshot implements the Consumer interface.
func (m *MirrorConsumer) ApplySnapshot(snapshot protocol.GraphSnapshot) {
	m.store.Replace(graph.State{
		Entities:          snapshot.Entities,
		DefaultVisibility: snapshot.DefaultVisibility,
		SharedMode:        snapshot.SharedMode,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	m.assets = make(map[string]protocol.AssetRef, len(snapshot.Assets))
	for p, a := range snapshot.Assets {
		m.assets[p] = a
	}
	m.snapshot = true

	m.logger.WithField("entities", len(snapshot.Entities)).Debug("Applied snapshot")
}

// ApplyUpdate implements the Consumer interface.
func (m *MirrorConsumer) ApplyUpdate(e graph.Entity) {
	if err := m.store.Update(e); err != nil {
		m.logger.WithError(err).Warn("Ignoring update")
	}
}

// ApplyDelete implements the Consumer interface.
func (m *MirrorConsumer) ApplyDelete(id string) {
	m.store.Delete(id)
}

// ApplyBatchUpdate implements the Consumer interface.
func (m *MirrorConsumer) ApplyBatchUpdate(patches map[string]graph.Entity) {
	m.store.BatchUpdate(patches)
}
