package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/meta"
	"github.com/facet-dev/facet/internal/store"
)

// Stub document keys returned for an already-visited related entity
const (
	StubIDKey         = "id"
	StubIdentifierKey = "_identifier"
)

// RecordLoader fetches persisted records by primary key
type RecordLoader interface {
	FindByID(ctx context.Context, class *entity.Class, id string) (*entity.Record, error)
}

// referenceStrategy navigates to a related persisted object and recursively
// converts it, breaking cycles with a minimal identifier stub.
type referenceStrategy struct {
	converter  *Converter
	meta       *meta.Service
	resolver   *entity.Resolver
	loader     RecordLoader
	translator ReferenceTranslator
}

func (s *referenceStrategy) Read(ctx context.Context, obj *entity.Record, field *meta.FieldMetadata, cc *Context) (interface{}, error) {
	value, err := obj.Get(field.Property)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	rel, ok := value.(*entity.Record)
	if !ok {
		return nil, fmt.Errorf("field %s: property %s is not a reference", field.Name, field.Property)
	}

	if cc != nil && cc.Visited(rel) {
		// Never expand the same object twice in one conversion
		return map[string]interface{}{
			StubIDKey:         rel.ID(),
			StubIdentifierKey: rel.InstanceName(),
		}, nil
	}

	related, err := s.meta.GetEntityByID(ctx, field.RelatedEntityID)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field.Name, err)
	}

	full := rel
	if s.loader != nil && rel.ID() != "" && len(rel.Attributes()) <= 1 {
		// The navigation may have produced an identity-only stub; hydrate
		// it before expanding.
		loaded, err := s.loader.FindByID(ctx, rel.Class(), rel.ID())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		full = loaded
	}

	return s.converter.ToDocument(ctx, full, related, related.Fields, cc), nil
}

func (s *referenceStrategy) Write(ctx context.Context, obj *entity.Record, value interface{}, field *meta.FieldMetadata, _ *Context) error {
	if value == nil {
		return obj.Set(field.Property, nil)
	}

	var externalID string
	switch v := value.(type) {
	case string:
		externalID = v
	case map[string]interface{}:
		id, ok := v["id"].(string)
		if !ok {
			return fmt.Errorf("field %s: reference document has no id", field.Name)
		}
		externalID = id
	default:
		return fmt.Errorf("field %s: reference value must be an id or a document, got %T", field.Name, value)
	}

	related, err := s.meta.GetEntityByID(ctx, field.RelatedEntityID)
	if err != nil {
		return fmt.Errorf("field %s: %w", field.Name, err)
	}

	internalID := externalID
	if s.translator != nil {
		internalID, err = s.translator.Translate(ctx, related.TableID, externalID)
		if err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	class, err := s.resolver.ResolveByTableID(related.TableID)
	if err != nil {
		return fmt.Errorf("field %s: %w", field.Name, err)
	}

	rel, err := s.loader.FindByID(ctx, class, internalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && field.CreateRelated {
			rel = entity.NewRecord(class)
			rel.SetID(internalID)
		} else {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	return obj.Set(field.Property, rel)
}
