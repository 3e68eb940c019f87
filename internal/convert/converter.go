package convert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/facet-dev/facet/internal/audit"
	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/meta"
)

// ErrConversion is returned for document-level conversion failures: a nil
// write document or a missing mandatory field.
var ErrConversion = errors.New("conversion failed")

// ReferenceTranslator converts one external identifier for a table
// identifier into its internal form.
type ReferenceTranslator interface {
	Translate(ctx context.Context, tableID, externalID string) (string, error)
}

// Converter orchestrates per-field strategy dispatch to produce and consume
// whole-entity documents.
type Converter struct {
	stamper    *audit.Stamper
	log        *zap.Logger
	strategies map[meta.MappingKind]Strategy
}

// NewConverter wires the converter and its five strategies
func NewConverter(
	metaSvc *meta.Service,
	resolver *entity.Resolver,
	loader RecordLoader,
	translator ReferenceTranslator,
	qualifiers *QualifierRegistry,
	stamper *audit.Stamper,
	log *zap.Logger,
) *Converter {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Converter{
		stamper: stamper,
		log:     log,
	}
	c.strategies = map[meta.MappingKind]Strategy{
		meta.MappingDirect:    &directStrategy{resolver: resolver},
		meta.MappingConstant:  &constantStrategy{},
		meta.MappingQualifier: &qualifierStrategy{registry: qualifiers},
		meta.MappingJSONPath:  &jsonPathStrategy{},
		meta.MappingReference: &referenceStrategy{
			converter:  c,
			meta:       metaSvc,
			resolver:   resolver,
			loader:     loader,
			translator: translator,
		},
	}
	return c
}

// ToDocument converts a record to a wire document, iterating fields in
// their stored order. A strategy error never aborts the whole read: the
// failing field is set to nil and iteration continues.
func (c *Converter) ToDocument(ctx context.Context, obj *entity.Record, em *meta.EntityMetadata, fields []*meta.FieldMetadata, cc *Context) map[string]interface{} {
	if obj == nil {
		return nil
	}
	if cc == nil {
		cc = NewContext(nil)
	}
	cc.Visited(obj)

	doc := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		strategy, ok := c.strategies[field.Kind]
		if !ok {
			doc[field.Name] = nil
			continue
		}
		value, err := strategy.Read(ctx, obj, field, cc)
		if err != nil {
			c.log.Warn("field read failed",
				zap.String("entity", em.Name),
				zap.String("field", field.Name),
				zap.Error(err))
			doc[field.Name] = nil
			continue
		}
		doc[field.Name] = value
	}
	return doc
}

// ToEntity converts a wire document onto a record. Every mandatory field,
// except constant-mapped ones, must be present as a key in the document.
// Audited classes receive their audit stamps here, not in the repository.
func (c *Converter) ToEntity(ctx context.Context, doc map[string]interface{}, obj *entity.Record, em *meta.EntityMetadata, fields []*meta.FieldMetadata) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrConversion)
	}

	for _, field := range fields {
		if !field.Mandatory || field.Kind == meta.MappingConstant {
			continue
		}
		if _, present := doc[field.Name]; !present {
			return fmt.Errorf("%w: missing mandatory field %q", ErrConversion, field.Name)
		}
	}

	cc := NewContext(doc)
	for _, field := range fields {
		strategy, ok := c.strategies[field.Kind]
		if !ok {
			continue
		}
		if err := strategy.Write(ctx, obj, doc[field.Name], field, cc); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	if c.stamper != nil && obj.Class().Audited {
		c.stamper.Stamp(ctx, obj)
	}
	return nil
}
