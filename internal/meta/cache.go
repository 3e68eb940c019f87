package meta

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Service serves immutable projection metadata through a cache-aside store.
// Entries are evicted only by explicit invalidation or reload, never by TTL:
// projection definitions are administrative data, not hot-changing state.
//
// Reads may run concurrently; a replaced entry is built fully before being
// published under the write lock, so a lookup never observes a partial tree.
type Service struct {
	store Store
	log   *zap.Logger

	mu          sync.RWMutex
	projections map[string]*ProjectionMetadata
}

// NewService creates a metadata service over the given store
func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       store,
		log:         log,
		projections: make(map[string]*ProjectionMetadata),
	}
}

// GetProjection returns the cached projection, loading and caching it on a
// miss. Returns ErrNotFound for unknown or ineligible projections.
func (s *Service) GetProjection(ctx context.Context, name string) (*ProjectionMetadata, error) {
	s.mu.RLock()
	p, ok := s.projections[name]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	loaded, err := s.store.LoadProjection(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have loaded it meanwhile; first insert wins so
	// concurrent readers keep seeing one consistent tree.
	if p, ok := s.projections[name]; ok {
		return p, nil
	}
	s.projections[name] = loaded
	return loaded, nil
}

// GetProjectionEntity returns the named entity within a projection, matched
// by external name when present, else internal name.
func (s *Service) GetProjectionEntity(ctx context.Context, projection, entityName string) (*EntityMetadata, error) {
	p, err := s.GetProjection(ctx, projection)
	if err != nil {
		return nil, err
	}
	ent, ok := p.Entity(entityName)
	if !ok {
		return nil, fmt.Errorf("%w: entity %q in projection %q", ErrNotFound, entityName, projection)
	}
	return ent, nil
}

// GetFields returns the fields of a projection entity by its id, scanning
// cached projections first and falling back to a direct store fetch.
func (s *Service) GetFields(ctx context.Context, entityID string) ([]*FieldMetadata, error) {
	if ent := s.cachedEntity(entityID); ent != nil {
		return ent.Fields, nil
	}
	return s.store.LoadFields(ctx, entityID)
}

// GetEntityByID returns a projection entity by its id, scanning cached
// projections first and falling back to a direct store fetch.
func (s *Service) GetEntityByID(ctx context.Context, entityID string) (*EntityMetadata, error) {
	if ent := s.cachedEntity(entityID); ent != nil {
		return ent, nil
	}
	return s.store.LoadEntity(ctx, entityID)
}

// AllProjectionNames returns the cache's current key set, sorted. Callers
// must Preload first to guarantee completeness.
func (s *Service) AllProjectionNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.projections))
	for name := range s.projections {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Preload eagerly loads every eligible projection. Per-projection load
// errors are logged and skipped; preload is best-effort.
func (s *Service) Preload(ctx context.Context) error {
	names, err := s.store.LoadProjectionNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projections for preload: %w", err)
	}

	loaded := 0
	for _, name := range names {
		if _, err := s.GetProjection(ctx, name); err != nil {
			s.log.Warn("failed to preload projection",
				zap.String("projection", name),
				zap.Error(err))
			continue
		}
		loaded++
	}

	s.log.Info("projection metadata preloaded",
		zap.Int("loaded", loaded),
		zap.Int("total", len(names)))
	return nil
}

// Invalidate clears all cached entries; the next access reloads from the
// store.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.projections = make(map[string]*ProjectionMetadata)
	s.mu.Unlock()

	s.log.Info("projection metadata cache invalidated")
}

// cachedEntity scans cached projections for an entity id
func (s *Service) cachedEntity(entityID string) *EntityMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projections {
		for _, e := range p.Entities {
			if e.ID == entityID {
				return e
			}
		}
	}
	return nil
}
