package convert

import (
	"context"
	"fmt"

	"github.com/jmespath/go-jmespath"

	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/meta"
)

// Strategy reads and writes a single field's value given its metadata and
// the owning record. One independent implementation exists per mapping
// kind; dispatch is by lookup table, not inheritance.
type Strategy interface {
	Read(ctx context.Context, obj *entity.Record, field *meta.FieldMetadata, cc *Context) (interface{}, error)
	Write(ctx context.Context, obj *entity.Record, value interface{}, field *meta.FieldMetadata, cc *Context) error
}

// directStrategy reads/writes a (possibly dotted) property path on the record
type directStrategy struct {
	resolver *entity.Resolver
}

func (s *directStrategy) Read(_ context.Context, obj *entity.Record, field *meta.FieldMetadata, _ *Context) (interface{}, error) {
	value, err := obj.Get(field.Property)
	if err != nil {
		return nil, err
	}
	return normalizeForTransport(value), nil
}

func (s *directStrategy) Write(_ context.Context, obj *entity.Record, value interface{}, field *meta.FieldMetadata, _ *Context) error {
	prop, err := s.resolver.PropertyAt(obj.Class(), field.Property)
	if err != nil {
		return err
	}
	coerced, err := coerceForProperty(prop, value)
	if err != nil {
		return err
	}
	return obj.Set(field.Property, coerced)
}

// constantStrategy returns a configured literal; client input never
// populates it, so writes are a no-op.
type constantStrategy struct{}

func (s *constantStrategy) Read(_ context.Context, _ *entity.Record, field *meta.FieldMetadata, _ *Context) (interface{}, error) {
	return field.Constant, nil
}

func (s *constantStrategy) Write(context.Context, *entity.Record, interface{}, *meta.FieldMetadata, *Context) error {
	return nil
}

// qualifierStrategy delegates to the named registered converter
type qualifierStrategy struct {
	registry *QualifierRegistry
}

func (s *qualifierStrategy) Read(ctx context.Context, obj *entity.Record, field *meta.FieldMetadata, cc *Context) (interface{}, error) {
	conv, err := s.registry.Resolve(field.Qualifier)
	if err != nil {
		return nil, err
	}
	return conv.Read(ctx, obj, field, cc)
}

func (s *qualifierStrategy) Write(ctx context.Context, obj *entity.Record, value interface{}, field *meta.FieldMetadata, cc *Context) error {
	conv, err := s.registry.Resolve(field.Qualifier)
	if err != nil {
		return err
	}
	return conv.Write(ctx, obj, value, field, cc)
}

// jsonPathStrategy evaluates a path expression against the context's full
// source document. This is the one kind whose source of truth is the
// transport document itself, not the persisted record.
type jsonPathStrategy struct{}

func (s *jsonPathStrategy) Read(_ context.Context, _ *entity.Record, field *meta.FieldMetadata, cc *Context) (interface{}, error) {
	if cc == nil || cc.Document() == nil {
		return nil, nil
	}
	value, err := jmespath.Search(field.Path, cc.Document())
	if err != nil {
		return nil, fmt.Errorf("json path %q: %w", field.Path, err)
	}
	return value, nil
}

func (s *jsonPathStrategy) Write(ctx context.Context, obj *entity.Record, _ interface{}, field *meta.FieldMetadata, cc *Context) error {
	// The written value is computed from sibling document fragments, not
	// from the field's own key.
	value, err := s.Read(ctx, obj, field, cc)
	if err != nil {
		return err
	}
	if field.Property == "" {
		return nil
	}
	return obj.Set(field.Property, value)
}
