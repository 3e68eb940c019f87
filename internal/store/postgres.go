package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/facet-dev/facet/internal/entity"
)

// Postgres is the Postgres-backed entity store and transaction handler
type Postgres struct {
	db       *sql.DB
	resolver *entity.Resolver
}

// NewPostgres creates a store over the given connection pool. The resolver
// supplies target classes when hydrating reference columns.
func NewPostgres(db *sql.DB, resolver *entity.Resolver) *Postgres {
	return &Postgres{db: db, resolver: resolver}
}

// FindByID fetches one record by primary key
func (p *Postgres) FindByID(ctx context.Context, class *entity.Class, id string) (*entity.Record, error) {
	cols, props := classColumns(class)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(cols, ", "), class.TableName, identityColumn(class))

	row := p.db.QueryRowContext(ctx, query, id)
	rec, err := p.scanRecord(row, class, props)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by id: %w", class.Name, ConvertDBError(err))
	}
	return rec, nil
}

// Query runs a filtered, sorted, paginated equality query
func (p *Postgres) Query(ctx context.Context, class *entity.Class, filters map[string]interface{}, sortKeys []SortKey, offset, limit int) ([]*entity.Record, error) {
	cols, props := classColumns(class)

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), class.TableName)
	where, values := buildWhere(filters)
	query += where

	if len(sortKeys) > 0 {
		var orders []string
		for _, key := range sortKeys {
			if key.Desc {
				orders = append(orders, key.Column+" DESC")
			} else {
				orders = append(orders, key.Column)
			}
		}
		query += " ORDER BY " + strings.Join(orders, ", ")
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := p.db.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", class.Name, ConvertDBError(err))
	}
	defer rows.Close()

	var results []*entity.Record
	for rows.Next() {
		rec, err := p.scanRecordRows(rows, class, props)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", class.Name, err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", class.Name, ConvertDBError(err))
	}

	return results, nil
}

// Count runs a count query sharing the same predicate set as Query
func (p *Postgres) Count(ctx context.Context, class *entity.Class, filters map[string]interface{}) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", class.TableName)
	where, values := buildWhere(filters)
	query += where

	var count int
	if err := p.db.QueryRowContext(ctx, query, values...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", class.Name, ConvertDBError(err))
	}
	return count, nil
}

// Begin starts a write-protocol transaction. Triggers are disabled for the
// transaction's duration via the session replication role; COMMIT restores
// the previous role.
func (p *Postgres) Begin(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SET LOCAL session_replication_role = 'replica'"); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to disable triggers: %w", err)
	}
	return &pgTx{store: p, tx: tx}, nil
}

// pgTx is one explicit Postgres transaction
type pgTx struct {
	store      *Postgres
	tx         *sql.Tx
	committed  atomic.Bool
	rolledBack atomic.Bool
}

// Merge upserts the record and refreshes its attributes from RETURNING,
// which captures generated, default, and trigger-computed columns.
func (t *pgTx) Merge(ctx context.Context, rec *entity.Record) error {
	class := rec.Class()
	if rec.ID() == "" {
		rec.SetID(uuid.New().String())
	}

	cols, values := mergeColumns(rec)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	idCol := identityColumn(class)
	var updateSets []string
	for _, col := range cols {
		if col == idCol {
			continue
		}
		updateSets = append(updateSets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	if len(updateSets) == 0 {
		updateSets = append(updateSets, fmt.Sprintf("%s = EXCLUDED.%s", idCol, idCol))
	}

	returnCols, returnProps := classColumns(class)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		class.TableName,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		idCol,
		strings.Join(updateSets, ", "),
		strings.Join(returnCols, ", "),
	)

	row := t.tx.QueryRowContext(ctx, query, values...)
	if err := t.store.scanInto(row, rec, returnProps); err != nil {
		return fmt.Errorf("failed to merge %s: %w", class.Name, ConvertDBError(err))
	}
	return nil
}

// Flush is immediate for this store: Merge executes its statement and reads
// the row back eagerly, so there is nothing buffered to force out.
func (t *pgTx) Flush(context.Context) error {
	return nil
}

// Commit commits the transaction
func (t *pgTx) Commit() error {
	if t.committed.Load() {
		return fmt.Errorf("transaction already committed")
	}
	if t.rolledBack.Load() {
		return fmt.Errorf("transaction already rolled back")
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction. Rolling back twice is a no-op.
func (t *pgTx) Rollback() error {
	if t.committed.Load() {
		return fmt.Errorf("transaction already committed")
	}
	if t.rolledBack.Load() {
		return nil
	}
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.rolledBack.Store(true)
	return nil
}

// identityColumn returns the storage column of the class's identity property
func identityColumn(class *entity.Class) string {
	if prop, ok := class.Property(class.IdentityProperty); ok {
		return prop.ColumnName()
	}
	return class.IdentityProperty
}

// classColumns returns the class's storage columns in sorted order for
// deterministic statements, with their properties aligned by index.
func classColumns(class *entity.Class) ([]string, []*entity.Property) {
	props := make([]*entity.Property, 0, len(class.Properties))
	for _, prop := range class.Properties {
		props = append(props, prop)
	}
	sort.Slice(props, func(i, j int) bool {
		return props[i].ColumnName() < props[j].ColumnName()
	})

	cols := make([]string, len(props))
	for i, prop := range props {
		cols[i] = prop.ColumnName()
	}
	return cols, props
}

// mergeColumns collects the columns and values to write for a record:
// identity, populated scalar attributes, and reference foreign keys.
func mergeColumns(rec *entity.Record) ([]string, []interface{}) {
	class := rec.Class()
	_, props := classColumns(class)

	var cols []string
	var values []interface{}
	for _, prop := range props {
		if prop.Kind == entity.PropReference {
			rel := rec.Relation(prop.Name)
			cols = append(cols, prop.ColumnName())
			if rel == nil {
				values = append(values, nil)
			} else {
				values = append(values, rel.ID())
			}
			continue
		}

		value, ok := rec.Attributes()[prop.Name]
		if !ok && prop.Name != class.IdentityProperty {
			// Absent attributes are omitted so column defaults apply
			continue
		}
		cols = append(cols, prop.ColumnName())
		values = append(values, value)
	}
	return cols, values
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (p *Postgres) scanRecord(row scanner, class *entity.Class, props []*entity.Property) (*entity.Record, error) {
	rec := entity.NewRecord(class)
	if err := p.scanInto(row, rec, props); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *Postgres) scanRecordRows(rows *sql.Rows, class *entity.Class, props []*entity.Property) (*entity.Record, error) {
	return p.scanRecord(rows, class, props)
}

// scanInto scans one row into the record's attributes. Reference columns
// hydrate stub relations carrying the identity only; a stub never replaces
// an already-loaded relation with the same identity.
func (p *Postgres) scanInto(row scanner, rec *entity.Record, props []*entity.Property) error {
	values := make([]interface{}, len(props))
	valuePtrs := make([]interface{}, len(props))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := row.Scan(valuePtrs...); err != nil {
		return err
	}

	for i, prop := range props {
		value := normalizeScanned(values[i])

		if prop.Kind == entity.PropReference {
			if value == nil {
				rec.SetRelation(prop.Name, nil)
				continue
			}
			fk := fmt.Sprintf("%v", value)
			if existing := rec.Relation(prop.Name); existing != nil && existing.ID() == fk {
				continue
			}
			target, err := p.resolver.ResolveByTableID(prop.Target)
			if err != nil {
				return err
			}
			stub := entity.NewRecord(target)
			stub.SetID(fk)
			rec.SetRelation(prop.Name, stub)
			continue
		}

		rec.Attributes()[prop.Name] = value
	}
	return nil
}

// normalizeScanned converts driver values to the record's canonical types
func normalizeScanned(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v
	default:
		return value
	}
}

// buildWhere builds an equality WHERE clause over sorted filter keys
func buildWhere(filters map[string]interface{}) (string, []interface{}) {
	if len(filters) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var clauses []string
	var values []interface{}
	for i, key := range keys {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", key, i+1))
		values = append(values, filters[key])
	}
	return " WHERE " + strings.Join(clauses, " AND "), values
}
