package entity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrClassNotFound is returned when no registered class matches a table
// identifier or table name.
var ErrClassNotFound = errors.New("no registered class for table")

// Resolver maps stable table identifiers and table names to registered
// classes. Built once from the registry; re-initialization is idempotent.
type Resolver struct {
	registry *Registry

	mu      sync.RWMutex
	byID    map[string]*Class
	byTable map[string]*Class
}

// NewResolver creates a resolver over the given registry and builds its
// indexes from the currently registered classes.
func NewResolver(registry *Registry) *Resolver {
	r := &Resolver{registry: registry}
	r.Init()
	return r
}

// Init builds the table-id and table-name indexes from the registry.
// Classes without a table identifier are still indexed by table name;
// classes without a table name are omitted from the name index.
func (r *Resolver) Init() {
	byID := make(map[string]*Class)
	byTable := make(map[string]*Class)

	for _, class := range r.registry.All() {
		if class.TableID != "" {
			byID[class.TableID] = class
		}
		if class.TableName != "" {
			byTable[normalizeTableName(class.TableName)] = class
		}
	}

	r.mu.Lock()
	r.byID = byID
	r.byTable = byTable
	r.mu.Unlock()
}

// ResolveByTableID resolves a class by its stable table identifier
func (r *Resolver) ResolveByTableID(tableID string) (*Class, error) {
	r.mu.RLock()
	class, ok := r.byID[tableID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: table id %q", ErrClassNotFound, tableID)
	}
	return class, nil
}

// ResolveByTableName resolves a class by its storage table name. Matching
// is case-insensitive and tolerant of a schema prefix.
func (r *Resolver) ResolveByTableName(name string) (*Class, error) {
	r.mu.RLock()
	class, ok := r.byTable[normalizeTableName(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: table name %q", ErrClassNotFound, name)
	}
	return class, nil
}

// PropertyAt resolves the declared property a dotted path terminates on,
// walking reference targets through the table-id index. The walk uses class
// metadata only; no relation needs to be loaded.
func (r *Resolver) PropertyAt(class *Class, path string) (*Property, error) {
	segments := strings.Split(path, ".")
	current := class

	for i, segment := range segments {
		prop, ok := current.Property(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, current.Name, segment)
		}
		if i == len(segments)-1 {
			return prop, nil
		}
		if prop.Kind != PropReference {
			return nil, fmt.Errorf("%w: %s.%s is not a reference", ErrUnknownProperty, current.Name, segment)
		}
		target, err := r.ResolveByTableID(prop.Target)
		if err != nil {
			return nil, err
		}
		current = target
	}

	return nil, fmt.Errorf("%w: empty property path", ErrUnknownProperty)
}

// normalizeTableName lowercases a table name and strips a schema prefix
func normalizeTableName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
