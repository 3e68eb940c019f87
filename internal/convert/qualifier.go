package convert

import (
	"context"
	"fmt"
	"sync"

	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/meta"
)

// QualifierConverter is a named conversion routine a qualifier-mapped field
// delegates to, enabling custom logic without growing the strategy dispatch.
type QualifierConverter interface {
	Read(ctx context.Context, obj *entity.Record, field *meta.FieldMetadata, cc *Context) (interface{}, error)
	Write(ctx context.Context, obj *entity.Record, value interface{}, field *meta.FieldMetadata, cc *Context) error
}

// QualifierFuncs adapts plain functions to QualifierConverter. A nil
// function makes the corresponding direction a no-op returning nil.
type QualifierFuncs struct {
	ReadFunc  func(ctx context.Context, obj *entity.Record, field *meta.FieldMetadata, cc *Context) (interface{}, error)
	WriteFunc func(ctx context.Context, obj *entity.Record, value interface{}, field *meta.FieldMetadata, cc *Context) error
}

// Read implements QualifierConverter
func (q QualifierFuncs) Read(ctx context.Context, obj *entity.Record, field *meta.FieldMetadata, cc *Context) (interface{}, error) {
	if q.ReadFunc == nil {
		return nil, nil
	}
	return q.ReadFunc(ctx, obj, field, cc)
}

// Write implements QualifierConverter
func (q QualifierFuncs) Write(ctx context.Context, obj *entity.Record, value interface{}, field *meta.FieldMetadata, cc *Context) error {
	if q.WriteFunc == nil {
		return nil
	}
	return q.WriteFunc(ctx, obj, value, field, cc)
}

// QualifierRegistry is the name → converter table for qualifier mappings
type QualifierRegistry struct {
	mu         sync.RWMutex
	converters map[string]QualifierConverter
}

// NewQualifierRegistry creates an empty registry
func NewQualifierRegistry() *QualifierRegistry {
	return &QualifierRegistry{
		converters: make(map[string]QualifierConverter),
	}
}

// Register registers a named converter
func (r *QualifierRegistry) Register(name string, conv QualifierConverter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("qualifier name cannot be empty")
	}
	if _, exists := r.converters[name]; exists {
		return fmt.Errorf("qualifier %s is already registered", name)
	}
	r.converters[name] = conv
	return nil
}

// Resolve returns the converter registered under the given name
func (r *QualifierRegistry) Resolve(name string) (QualifierConverter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.converters[name]
	if !ok {
		return nil, fmt.Errorf("no qualifier converter registered for %q", name)
	}
	return conv, nil
}

// Check validates that every qualifier-mapped field of the projection
// resolves to a registered converter. Unknown qualifiers are a
// configuration error, caught here rather than at request time.
func (r *QualifierRegistry) Check(p *meta.ProjectionMetadata) error {
	for _, ent := range p.Entities {
		for _, field := range ent.Fields {
			if field.Kind != meta.MappingQualifier {
				continue
			}
			if _, err := r.Resolve(field.Qualifier); err != nil {
				return fmt.Errorf("projection %s, entity %s, field %s: %w",
					p.Name, ent.Name, field.Name, err)
			}
		}
	}
	return nil
}
