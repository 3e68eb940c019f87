package extid

import (
	"context"
	"fmt"

	"github.com/facet-dev/facet/internal/meta"
)

// Translator rewrites externally-visible identifiers embedded in an
// incoming write document into internal identifiers before persistence.
type Translator struct {
	mapper Mapper
	meta   *meta.Service
}

// NewTranslator creates a translator over the mapping store and the
// metadata service (used to resolve related entities' table identifiers).
func NewTranslator(mapper Mapper, metaSvc *meta.Service) *Translator {
	return &Translator{mapper: mapper, meta: metaSvc}
}

// Translate converts one external identifier for the table. Unknown
// identifiers pass through unchanged: an externally-supplied id with no
// mapping is treated as already internal.
func (t *Translator) Translate(ctx context.Context, tableID, externalID string) (string, error) {
	internal, ok, err := t.mapper.Lookup(ctx, tableID, externalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return externalID, nil
	}
	return internal, nil
}

// TranslateDocument rewrites the document in place. The top-level id
// translates against the entity's own table identifier; entity-reference
// field values translate against the related entity's table identifier,
// either as a bare string or as the id key of a nested map (sibling keys
// are left untouched). Absent keys and non-reference fields are skipped.
func (t *Translator) TranslateDocument(ctx context.Context, doc map[string]interface{}, em *meta.EntityMetadata) error {
	if doc == nil {
		return nil
	}

	if raw, ok := doc["id"]; ok {
		if id, ok := raw.(string); ok {
			internal, err := t.Translate(ctx, em.TableID, id)
			if err != nil {
				return err
			}
			doc["id"] = internal
		}
	}

	for _, field := range em.Fields {
		if field.Kind != meta.MappingReference {
			continue
		}
		raw, ok := doc[field.Name]
		if !ok || raw == nil {
			continue
		}

		related, err := t.meta.GetEntityByID(ctx, field.RelatedEntityID)
		if err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}

		switch v := raw.(type) {
		case string:
			internal, err := t.Translate(ctx, related.TableID, v)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
			doc[field.Name] = internal
		case map[string]interface{}:
			nested, ok := v["id"].(string)
			if !ok {
				continue
			}
			internal, err := t.Translate(ctx, related.TableID, nested)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
			v["id"] = internal
		}
	}

	return nil
}
