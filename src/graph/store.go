package graph

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Store is a thread-safe in-memory graph of entities.
//
// Every mutation fires the corresponding hooks while the store holds its write
// lock. Hooks therefore observe mutations in the order they were applied, but
// they must not call back into the store.
type Store struct {
	sync.RWMutex

	entities          map[string]Entity
	defaultVisibility *Visibility
	sharedMode        bool

	nextHook    int
	updateHooks map[int]func(Entity)
	deleteHooks map[int]func(string)
	batchHooks  map[int]func(map[string]Entity)

	logger *logrus.Entry
}

// NewStore creates an empty Store. If logger is nil, a new one is created.
func NewStore(logger *logrus.Entry) *Store {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Store{
		entities:    make(map[string]Entity),
		updateHooks: make(map[int]func(Entity)),
		deleteHooks: make(map[int]func(string)),
		batchHooks:  make(map[int]func(map[string]Entity)),
		logger:      logger,
	}
}

// Get returns a copy of the entity with the given id.
func (s *Store) Get(id string) (Entity, bool) {
	s.RLock()
	defer s.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Len returns the number of entities in the store.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.entities)
}

// Update inserts or replaces an entity and fires the update hooks.
func (s *Store) Update(e Entity) error {
	id := e.ID()
	if id == "" {
		return fmt.Errorf("entity has no %q field", FieldID)
	}

	s.Lock()
	defer s.Unlock()

	s.entities[id] = e.Clone()

	for _, h := range s.updateHooks {
		h(e.Clone())
	}

	return nil
}

// BatchUpdate merges partial entities into the store, creating the entities
// that do not exist yet, and fires the batch-update hooks with the patches.
// Applying the same batch twice leaves the store unchanged.
func (s *Store) BatchUpdate(patches map[string]Entity) {
	if len(patches) == 0 {
		return
	}

	s.Lock()
	defer s.Unlock()

	for id, patch := range patches {
		e, ok := s.entities[id]
		if !ok {
			e = Entity{FieldID: id}
			s.entities[id] = e
		}
		e.Merge(patch)
		e[FieldID] = id
	}

	for _, h := range s.batchHooks {
		h(clonePatches(patches))
	}
}

// Delete removes an entity and fires the delete hooks. It reports whether the
// entity existed. Hooks are not fired for unknown ids.
func (s *Store) Delete(id string) bool {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.entities[id]; !ok {
		return false
	}

	delete(s.entities, id)

	for _, h := range s.deleteHooks {
		h(id)
	}

	return true
}

// Replace discards the contents of the store and loads the given state. No
// hooks are fired; it is used by guests to apply a snapshot.
func (s *Store) Replace(state State) {
	s.Lock()
	defer s.Unlock()

	s.entities = make(map[string]Entity, len(state.Entities))
	for id, e := range state.Entities {
		s.entities[id] = e.Clone()
	}
	s.defaultVisibility = state.DefaultVisibility
	s.sharedMode = state.SharedMode
}

// SetSharedMode sets the shared-mode flag of the graph.
func (s *Store) SetSharedMode(shared bool) {
	s.Lock()
	defer s.Unlock()
	s.sharedMode = shared
}

// SetDefaultVisibility sets the default visibility of the graph. A nil value
// clears it.
func (s *Store) SetDefaultVisibility(v *Visibility) {
	s.Lock()
	defer s.Unlock()
	s.defaultVisibility = v
}

// State returns a copy of the contents of the store.
func (s *Store) State() State {
	s.RLock()
	defer s.RUnlock()
	return s.state()
}

// View calls fn with a copy of the contents of the store while holding the
// read lock. No mutation, and therefore no hook, can run until fn returns.
func (s *Store) View(fn func(State)) {
	s.RLock()
	defer s.RUnlock()
	fn(s.state())
}

func (s *Store) state() State {
	entities := make(map[string]Entity, len(s.entities))
	for id, e := range s.entities {
		entities[id] = e.Clone()
	}
	return State{
		Entities:          entities,
		DefaultVisibility: s.defaultVisibility,
		SharedMode:        s.sharedMode,
	}
}

// OnEntityUpdate registers a hook fired after every Update. The returned
// function unregisters it.
func (s *Store) OnEntityUpdate(fn func(Entity)) func() {
	s.Lock()
	defer s.Unlock()

	id := s.nextHook
	s.nextHook++
	s.updateHooks[id] = fn

	return func() {
		s.Lock()
		defer s.Unlock()
		delete(s.updateHooks, id)
	}
}

// OnEntityDelete registers a hook fired after every successful Delete. The
// returned function unregisters it.
func (s *Store) OnEntityDelete(fn func(string)) func() {
	s.Lock()
	defer s.Unlock()

	id := s.nextHook
	s.nextHook++
	s.deleteHooks[id] = fn

	return func() {
		s.Lock()
		defer s.Unlock()
		delete(s.deleteHooks, id)
	}
}

// OnBatchUpdate registers a hook fired after every BatchUpdate. The returned
// function unregisters it.
func (s *Store) OnBatchUpdate(fn func(map[string]Entity)) func() {
	s.Lock()
	defer s.Unlock()

	id := s.nextHook
	s.nextHook++
	s.batchHooks[id] = fn

	return func() {
		s.Lock()
		defer s.Unlock()
		delete(s.batchHooks, id)
	}
}

func clonePatches(patches map[string]Entity) map[string]Entity {
	res := make(map[string]Entity, len(patches))
	for id, p := range patches {
		res[id] = p.Clone()
	}
	return res
}
