// Package extid keeps the bookkeeping between externally-visible identifiers
// and internal primary keys, and rewrites incoming documents at the system
// boundary.
package extid

import (
	"context"
	"sync"
)

// Mapper is the bidirectional external-id mapping store. Add calls may be
// buffered; Flush makes them durable.
type Mapper interface {
	// Lookup translates an external identifier for the given table
	// identifier. ok is false when no mapping exists.
	Lookup(ctx context.Context, tableID, externalID string) (string, bool, error)

	// Add registers an internal id under the entity's table identifier
	Add(ctx context.Context, tableID, internalID string) error

	// Flush persists buffered registrations
	Flush(ctx context.Context) error
}

// MemoryMapper is an in-process mapper for tests and single-node deployments
type MemoryMapper struct {
	mu       sync.RWMutex
	mappings map[string]string            // tableID "\x00" externalID -> internalID
	known    map[string]map[string]bool   // tableID -> internal ids
}

// NewMemoryMapper creates an empty in-process mapper
func NewMemoryMapper() *MemoryMapper {
	return &MemoryMapper{
		mappings: make(map[string]string),
		known:    make(map[string]map[string]bool),
	}
}

// Put seeds an explicit external → internal mapping
func (m *MemoryMapper) Put(tableID, externalID, internalID string) {
	m.mu.Lock()
	m.mappings[mapKey(tableID, externalID)] = internalID
	m.mu.Unlock()
}

// Lookup translates an external identifier
func (m *MemoryMapper) Lookup(_ context.Context, tableID, externalID string) (string, bool, error) {
	m.mu.RLock()
	internal, ok := m.mappings[mapKey(tableID, externalID)]
	m.mu.RUnlock()
	return internal, ok, nil
}

// Add registers an internal id under the table identifier
func (m *MemoryMapper) Add(_ context.Context, tableID, internalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.known[tableID]
	if !ok {
		ids = make(map[string]bool)
		m.known[tableID] = ids
	}
	ids[internalID] = true
	return nil
}

// Flush is a no-op; in-process registrations are immediately visible
func (m *MemoryMapper) Flush(context.Context) error {
	return nil
}

// Known reports whether an internal id is registered for the table
func (m *MemoryMapper) Known(tableID, internalID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.known[tableID][internalID]
}

func mapKey(tableID, externalID string) string {
	return tableID + "\x00" + externalID
}
