package idmap

import (
	"sync"

	"github.com/hupe1980/segdag/model"
)

// Compile time check to ensure MemIdMap satisfies the IdMap interface.
var _ IdMap = (*MemIdMap)(nil)

// MemIdMap is an in-memory IdMap.
type MemIdMap struct {
	mu       sync.RWMutex
	idToName map[model.Id]model.Vertex
	nameToID map[string]model.Id
	nextFree [len(model.AllGroups)]model.Id
}

// NewMemIdMap creates an empty in-memory IdMap.
func NewMemIdMap() *MemIdMap {
	m := &MemIdMap{
		idToName: make(map[model.Id]model.Vertex),
		nameToID: make(map[string]model.Id),
	}
	for _, g := range model.AllGroups {
		m.nextFree[g] = g.MinID()
	}

	return m
}

// Insert adds the binding (id, name).
func (m *MemIdMap) Insert(id model.Id, name model.Vertex) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertLocked(id, name)
}

func (m *MemIdMap) insertLocked(id model.Id, name model.Vertex) error {
	if existing, ok := m.idToName[id]; ok {
		if existing.Equal(name) {
			return nil
		}
		return errProgramming("id %s is already bound to %s, cannot rebind to %s", id, existing, name)
	}
	if existing, ok := m.nameToID[name.Key()]; ok {
		return errProgramming("vertex %s is already bound to %s, cannot rebind to %s", name, existing, id)
	}

	m.idToName[id] = name
	m.nameToID[name.Key()] = id

	group := id.Group()
	if id >= m.nextFree[group] {
		m.nextFree[group] = id + 1
	}

	return nil
}

// VertexID returns the id bound to name.
func (m *MemIdMap) VertexID(name model.Vertex) (model.Id, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.nameToID[name.Key()]
	if !ok {
		return 0, &ErrVertexNotFound{Name: name}
	}

	return id, nil
}

// VertexName returns the name bound to id.
func (m *MemIdMap) VertexName(id model.Id) (model.Vertex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.idToName[id]
	if !ok {
		return nil, &ErrIDNotFound{ID: id}
	}

	return name, nil
}

// ContainsVertexName reports whether name has an id binding.
func (m *MemIdMap) ContainsVertexName(name model.Vertex) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.nameToID[name.Key()]
	return ok
}

// NextFreeID returns the lowest unassigned id of the group.
func (m *MemIdMap) NextFreeID(group model.Group) model.Id {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nextFree[group]
}

// RemoveNonMaster drops every binding in the non-master group.
func (m *MemIdMap) RemoveNonMaster() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, name := range m.idToName {
		if id.Group() != model.GroupNonMaster {
			continue
		}
		delete(m.idToName, id)
		delete(m.nameToID, name.Key())
	}
	m.nextFree[model.GroupNonMaster] = model.GroupNonMaster.MinID()

	return nil
}

// CloneReadOnly returns a copy whose reads are unaffected by later
// mutations of the receiver. Vertex bytes are shared; they are never
// mutated after insert.
func (m *MemIdMap) CloneReadOnly() IdMap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clone := &MemIdMap{
		idToName: make(map[model.Id]model.Vertex, len(m.idToName)),
		nameToID: make(map[string]model.Id, len(m.nameToID)),
		nextFree: m.nextFree,
	}
	for id, name := range m.idToName {
		clone.idToName[id] = name
	}
	for key, id := range m.nameToID {
		clone.nameToID[key] = id
	}

	return clone
}
