package meta

import (
	"context"
	"database/sql"
	"fmt"
)

// Store loads projection metadata from the management database
type Store interface {
	// LoadProjection loads one eligible projection with its entities and
	// fields. Returns ErrNotFound for unknown or ineligible projections.
	LoadProjection(ctx context.Context, name string) (*ProjectionMetadata, error)

	// LoadProjectionNames lists the names of all eligible projections
	LoadProjectionNames(ctx context.Context) ([]string, error)

	// LoadFields loads the fields of one projection entity ordered by ordinal
	LoadFields(ctx context.Context, entityID string) ([]*FieldMetadata, error)

	// LoadEntity loads a single projection entity with its fields
	LoadEntity(ctx context.Context, entityID string) (*EntityMetadata, error)
}

// SQLStore is the Postgres-backed metadata store
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over the management database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const projectionQuery = `
SELECT p.id, p.name, p.description, p.transport, p.module_name, p.in_development,
       e.id, e.name, e.table_id, e.mapping_type, e.is_identity, e.is_rest, e.external_name,
       f.id, f.name, f.property, f.kind, f.mandatory, f.is_unique, f.ordinal,
       f.qualifier, f.constant_value, f.path_expr, f.related_entity_id, f.create_related
FROM fct_projection p
LEFT JOIN fct_projection_entity e ON e.projection_id = p.id
LEFT JOIN fct_projection_entity_field f ON f.entity_id = e.id
WHERE p.name = $1 AND p.in_development = TRUE
ORDER BY e.id, f.ordinal NULLS LAST, f.id`

// LoadProjection loads a projection plus its entities and fields in one
// fetch, avoiding per-entity round trips.
func (s *SQLStore) LoadProjection(ctx context.Context, name string) (*ProjectionMetadata, error) {
	rows, err := s.db.QueryContext(ctx, projectionQuery, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load projection %s: %w", name, err)
	}
	defer rows.Close()

	var projection *ProjectionMetadata
	entities := make(map[string]*EntityMetadata)
	var order []string

	for rows.Next() {
		var (
			pID, pName              string
			pDesc, pTransport       sql.NullString
			pModule                 sql.NullString
			pInDev                  bool
			eID, eName, eTableID    sql.NullString
			eMapping, eExternal     sql.NullString
			eIdentity, eREST        sql.NullBool
			fID, fName, fProperty   sql.NullString
			fKind                   sql.NullString
			fMandatory, fUnique     sql.NullBool
			fOrdinal                sql.NullInt64
			fQualifier, fConstant   sql.NullString
			fPath, fRelatedEntityID sql.NullString
			fCreateRelated          sql.NullBool
		)

		if err := rows.Scan(
			&pID, &pName, &pDesc, &pTransport, &pModule, &pInDev,
			&eID, &eName, &eTableID, &eMapping, &eIdentity, &eREST, &eExternal,
			&fID, &fName, &fProperty, &fKind, &fMandatory, &fUnique, &fOrdinal,
			&fQualifier, &fConstant, &fPath, &fRelatedEntityID, &fCreateRelated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan projection row: %w", err)
		}

		if projection == nil {
			projection = &ProjectionMetadata{
				ID:            pID,
				Name:          pName,
				Description:   pDesc.String,
				Transport:     pTransport.String,
				ModuleName:    pModule.String,
				InDevelopment: pInDev,
			}
		}

		if !eID.Valid {
			continue
		}
		ent, ok := entities[eID.String]
		if !ok {
			ent = &EntityMetadata{
				ID:           eID.String,
				Name:         eName.String,
				TableID:      eTableID.String,
				MappingType:  eMapping.String,
				Identity:     eIdentity.Bool,
				REST:         eREST.Bool,
				ExternalName: eExternal.String,
			}
			entities[eID.String] = ent
			order = append(order, eID.String)
		}

		if !fID.Valid {
			continue
		}
		field, err := scanField(fID, fName, fProperty, fKind, fMandatory, fUnique,
			fOrdinal, fQualifier, fConstant, fPath, fRelatedEntityID, fCreateRelated)
		if err != nil {
			return nil, err
		}
		ent.Fields = append(ent.Fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read projection rows: %w", err)
	}

	if projection == nil {
		return nil, fmt.Errorf("%w: projection %q", ErrNotFound, name)
	}

	for _, id := range order {
		ent := entities[id]
		SortFields(ent.Fields)
		projection.Entities = append(projection.Entities, ent)
	}

	return projection, nil
}

// LoadProjectionNames lists all eligible projection names
func (s *SQLStore) LoadProjectionNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM fct_projection WHERE in_development = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan projection name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

const fieldQuery = `
SELECT f.id, f.name, f.property, f.kind, f.mandatory, f.is_unique, f.ordinal,
       f.qualifier, f.constant_value, f.path_expr, f.related_entity_id, f.create_related
FROM fct_projection_entity_field f
WHERE f.entity_id = $1
ORDER BY f.ordinal NULLS LAST, f.id`

// LoadFields loads the fields of one projection entity ordered by ordinal
func (s *SQLStore) LoadFields(ctx context.Context, entityID string) ([]*FieldMetadata, error) {
	rows, err := s.db.QueryContext(ctx, fieldQuery, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields for entity %s: %w", entityID, err)
	}
	defer rows.Close()

	var fields []*FieldMetadata
	for rows.Next() {
		var (
			fID, fName, fProperty   sql.NullString
			fKind                   sql.NullString
			fMandatory, fUnique     sql.NullBool
			fOrdinal                sql.NullInt64
			fQualifier, fConstant   sql.NullString
			fPath, fRelatedEntityID sql.NullString
			fCreateRelated          sql.NullBool
		)
		if err := rows.Scan(&fID, &fName, &fProperty, &fKind, &fMandatory, &fUnique,
			&fOrdinal, &fQualifier, &fConstant, &fPath, &fRelatedEntityID, &fCreateRelated); err != nil {
			return nil, fmt.Errorf("failed to scan field row: %w", err)
		}
		field, err := scanField(fID, fName, fProperty, fKind, fMandatory, fUnique,
			fOrdinal, fQualifier, fConstant, fPath, fRelatedEntityID, fCreateRelated)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

const entityQuery = `
SELECT e.id, e.name, e.table_id, e.mapping_type, e.is_identity, e.is_rest, e.external_name
FROM fct_projection_entity e
WHERE e.id = $1`

// LoadEntity loads one projection entity with its fields
func (s *SQLStore) LoadEntity(ctx context.Context, entityID string) (*EntityMetadata, error) {
	row := s.db.QueryRowContext(ctx, entityQuery, entityID)

	var (
		id, name         string
		tableID, mapping sql.NullString
		identity, rest   sql.NullBool
		external         sql.NullString
	)
	if err := row.Scan(&id, &name, &tableID, &mapping, &identity, &rest, &external); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: projection entity %q", ErrNotFound, entityID)
		}
		return nil, fmt.Errorf("failed to load projection entity %s: %w", entityID, err)
	}

	ent := &EntityMetadata{
		ID:           id,
		Name:         name,
		TableID:      tableID.String,
		MappingType:  mapping.String,
		Identity:     identity.Bool,
		REST:         rest.Bool,
		ExternalName: external.String,
	}

	fields, err := s.LoadFields(ctx, entityID)
	if err != nil {
		return nil, err
	}
	ent.Fields = fields
	return ent, nil
}

// scanField builds an immutable FieldMetadata from scanned columns
func scanField(
	id, name, property, kind sql.NullString,
	mandatory, unique sql.NullBool,
	ordinal sql.NullInt64,
	qualifier, constant, path, relatedEntityID sql.NullString,
	createRelated sql.NullBool,
) (*FieldMetadata, error) {
	mappingKind, err := ParseMappingKind(kind.String)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name.String, err)
	}

	return &FieldMetadata{
		ID:              id.String,
		Name:            name.String,
		Property:        property.String,
		Kind:            mappingKind,
		Mandatory:       mandatory.Bool,
		Unique:          unique.Bool,
		Ordinal:         int(ordinal.Int64),
		OrdinalSet:      ordinal.Valid,
		Qualifier:       qualifier.String,
		Constant:        constant.String,
		Path:            path.String,
		RelatedEntityID: relatedEntityID.String,
		CreateRelated:   createRelated.Bool,
	}, nil
}
