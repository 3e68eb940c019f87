// Package repo implements the metadata-driven read and write operations
// over persisted entities, including the strict multi-step write protocol
// required for trigger, external-id, and audit consistency.
package repo

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/facet-dev/facet/internal/convert"
	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/extid"
	"github.com/facet-dev/facet/internal/meta"
	"github.com/facet-dev/facet/internal/store"
)

// ExternalIDService is the external-id bookkeeping collaborator
type ExternalIDService interface {
	Add(ctx context.Context, tableID, internalID string) error
	Flush(ctx context.Context) error
}

// PostSyncService is the post-write synchronization hook collaborator
type PostSyncService interface {
	Flush(ctx context.Context) error
}

// NopPostSync is the default post-sync service; its flush does nothing
type NopPostSync struct{}

// Flush implements PostSyncService
func (NopPostSync) Flush(context.Context) error { return nil }

// Repository reads and writes projection entities through the metadata
// cache, the class resolver, and the conversion pipeline.
type Repository struct {
	meta        *meta.Service
	resolver    *entity.Resolver
	store       store.EntityStore
	tx          store.TransactionHandler
	converter   *convert.Converter
	translator  *extid.Translator
	externalIDs ExternalIDService
	postSync    PostSyncService
	validator   ObjectValidator
	log         *zap.Logger
}

// New creates a repository. A nil postSync defaults to the no-op service;
// a nil validator defaults to the constraint validator.
func New(
	metaSvc *meta.Service,
	resolver *entity.Resolver,
	entityStore store.EntityStore,
	txHandler store.TransactionHandler,
	converter *convert.Converter,
	translator *extid.Translator,
	externalIDs ExternalIDService,
	postSync PostSyncService,
	validator ObjectValidator,
	log *zap.Logger,
) *Repository {
	if postSync == nil {
		postSync = NopPostSync{}
	}
	if validator == nil {
		validator = NewConstraintValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{
		meta:        metaSvc,
		resolver:    resolver,
		store:       entityStore,
		tx:          txHandler,
		converter:   converter,
		translator:  translator,
		externalIDs: externalIDs,
		postSync:    postSync,
		validator:   validator,
		log:         log,
	}
}

// resolve returns the projection entity metadata and its persisted class
func (r *Repository) resolve(ctx context.Context, projection, entityName string) (*meta.EntityMetadata, *entity.Class, error) {
	em, err := r.meta.GetProjectionEntity(ctx, projection, entityName)
	if err != nil {
		return nil, nil, err
	}
	class, err := r.resolver.ResolveByTableID(em.TableID)
	if err != nil {
		return nil, nil, err
	}
	return em, class, nil
}

// FindByID fetches one entity by primary key and converts it to a document
func (r *Repository) FindByID(ctx context.Context, projection, entityName, id string) (map[string]interface{}, error) {
	em, class, err := r.resolve(ctx, projection, entityName)
	if err != nil {
		return nil, err
	}

	rec, err := r.store.FindByID(ctx, class, id)
	if err != nil {
		return nil, err
	}

	return r.converter.ToDocument(ctx, rec, em, em.Fields, nil), nil
}

// FindAll runs a filtered, paginated list query. Only filter keys matching
// a direct-mapping field become predicates; other keys are silently
// ignored, they have no queryable column.
func (r *Repository) FindAll(ctx context.Context, projection, entityName string, filters map[string]string, page Pageable) (*Page, error) {
	em, class, err := r.resolve(ctx, projection, entityName)
	if err != nil {
		return nil, err
	}

	predicates := make(map[string]interface{})
	for key, value := range filters {
		field, ok := em.Field(key)
		if !ok || field.Kind != meta.MappingDirect {
			continue
		}
		column, ok := r.queryColumn(class, field.Property)
		if !ok {
			r.log.Debug("filter key has no queryable column",
				zap.String("entity", em.Name),
				zap.String("field", key))
			continue
		}
		predicates[column] = value
	}

	var sortKeys []store.SortKey
	for _, spec := range page.Sort {
		property := spec.Property
		if field, ok := em.Field(spec.Property); ok {
			property = field.Property
		}
		column, ok := r.queryColumn(class, property)
		if !ok {
			continue
		}
		sortKeys = append(sortKeys, store.SortKey{Column: column, Desc: spec.Desc})
	}

	total, err := r.store.Count(ctx, class, predicates)
	if err != nil {
		return nil, err
	}

	records, err := r.store.Query(ctx, class, predicates, sortKeys, page.Offset(), page.Limit())
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		items = append(items, r.converter.ToDocument(ctx, rec, em, em.Fields, nil))
	}

	return &Page{
		Items: items,
		Total: total,
		Page:  page.Page,
		Size:  page.Limit(),
	}, nil
}

// queryColumn resolves a dotted property path to a storage column on the
// entity's own table: a plain property maps to its column, and a
// reference's identity maps to the foreign key column.
func (r *Repository) queryColumn(class *entity.Class, path string) (string, bool) {
	segments := strings.Split(path, ".")

	prop, ok := class.Property(segments[0])
	if !ok {
		return "", false
	}

	switch len(segments) {
	case 1:
		if prop.Kind == entity.PropReference {
			return prop.ColumnName(), true
		}
		return prop.ColumnName(), true
	case 2:
		if prop.Kind != entity.PropReference {
			return "", false
		}
		target, err := r.resolver.ResolveByTableID(prop.Target)
		if err != nil {
			return "", false
		}
		if segments[1] == target.IdentityProperty {
			return prop.ColumnName(), true
		}
		return "", false
	default:
		return "", false
	}
}

// Save runs a single document through the write protocol
func (r *Repository) Save(ctx context.Context, projection, entityName string, doc map[string]interface{}) (map[string]interface{}, error) {
	docs, err := r.SaveBatch(ctx, projection, entityName, []map[string]interface{}{doc})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// Update runs a document through the write protocol with the identity
// taken from the call, overriding any document value.
func (r *Repository) Update(ctx context.Context, projection, entityName, id string, doc map[string]interface{}) (map[string]interface{}, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", convert.ErrConversion)
	}
	doc["id"] = id
	return r.Save(ctx, projection, entityName, doc)
}

// SaveBatch runs every document through the identical per-item pipeline
// inside one transaction. Any item failure aborts the batch before commit;
// nothing is kept.
//
// The relative order of the per-item steps is a correctness contract with
// the underlying database triggers and must not be reordered.
func (r *Repository) SaveBatch(ctx context.Context, projection, entityName string, docs []map[string]interface{}) ([]map[string]interface{}, error) {
	em, class, err := r.resolve(ctx, projection, entityName)
	if err != nil {
		return nil, err
	}

	tx, err := r.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*entity.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := r.saveOne(ctx, tx, em, class, doc)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		records = append(records, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		fresh, err := r.store.FindByID(ctx, class, rec.ID())
		if err != nil {
			return nil, err
		}
		results = append(results, r.converter.ToDocument(ctx, fresh, em, em.Fields, nil))
	}
	return results, nil
}

// saveOne executes the per-item write steps inside the open transaction
func (r *Repository) saveOne(ctx context.Context, tx store.Transaction, em *meta.EntityMetadata, class *entity.Class, doc map[string]interface{}) (*entity.Record, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", convert.ErrConversion)
	}

	if err := r.translator.TranslateDocument(ctx, doc, em); err != nil {
		return nil, err
	}

	rec, err := r.resolveTarget(ctx, class, doc)
	if err != nil {
		return nil, err
	}

	if err := r.converter.ToEntity(ctx, doc, rec, em, em.Fields); err != nil {
		return nil, err
	}

	if errs := filterIdentityViolations(r.validator.Validate(rec), class); errs != nil {
		return nil, errs
	}

	if err := tx.Merge(ctx, rec); err != nil {
		return nil, err
	}
	if err := tx.Flush(ctx); err != nil {
		return nil, err
	}

	if err := r.externalIDs.Add(ctx, em.TableID, rec.ID()); err != nil {
		return nil, err
	}
	if err := r.externalIDs.Flush(ctx); err != nil {
		return nil, err
	}

	// Second merge captures trigger- and default-computed columns that only
	// exist after the first flush.
	if err := tx.Merge(ctx, rec); err != nil {
		return nil, err
	}

	if err := r.postSync.Flush(ctx); err != nil {
		return nil, err
	}

	// Second external-id flush covers ids discovered by the post-sync step
	if err := r.externalIDs.Flush(ctx); err != nil {
		return nil, err
	}

	return rec, nil
}

// resolveTarget returns the existing record when the document carries a
// matching id, else a fresh instance. The converter is never handed nil.
func (r *Repository) resolveTarget(ctx context.Context, class *entity.Class, doc map[string]interface{}) (*entity.Record, error) {
	id, _ := doc["id"].(string)
	if id != "" {
		rec, err := r.store.FindByID(ctx, class, id)
		if err == nil {
			return rec, nil
		}
		if !store.IsNotFound(err) {
			return nil, err
		}
	}
	return entity.NewRecord(class), nil
}
