// Package meta holds the immutable projection → entity → field metadata
// model, the management-database loader, and the cache that serves it.
package meta

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned when a projection or projection entity is unknown
// to the cache and the backing store.
var ErrNotFound = errors.New("metadata not found")

// MappingKind determines how a field's value is produced or consumed
type MappingKind int

const (
	// MappingDirect reads/writes a property path on the entity
	MappingDirect MappingKind = iota
	// MappingConstant returns a configured literal; writes are a no-op
	MappingConstant
	// MappingQualifier delegates to a named, registered converter
	MappingQualifier
	// MappingReference navigates to a related persisted object
	MappingReference
	// MappingJSONPath evaluates a path expression against the source document
	MappingJSONPath
)

// String returns the string representation of the mapping kind
func (k MappingKind) String() string {
	switch k {
	case MappingDirect:
		return "direct"
	case MappingConstant:
		return "constant"
	case MappingQualifier:
		return "qualifier"
	case MappingReference:
		return "entity"
	case MappingJSONPath:
		return "jsonpath"
	default:
		return "unknown"
	}
}

// ParseMappingKind converts a stored tag to a MappingKind
func ParseMappingKind(s string) (MappingKind, error) {
	switch s {
	case "direct":
		return MappingDirect, nil
	case "constant":
		return MappingConstant, nil
	case "qualifier":
		return MappingQualifier, nil
	case "entity":
		return MappingReference, nil
	case "jsonpath":
		return MappingJSONPath, nil
	default:
		return 0, fmt.Errorf("unknown mapping kind: %s", s)
	}
}

// FieldMetadata describes one exposed field of a projection entity.
// Instances are immutable once loaded.
type FieldMetadata struct {
	ID       string
	Name     string // external field name
	Property string // source property path, dot-separated
	Kind     MappingKind

	Mandatory bool
	Unique    bool // identifies the entity uniquely

	Ordinal    int
	OrdinalSet bool // fields with no ordinal sort last, stably

	// Kind-specific payload
	Qualifier       string // MappingQualifier: registered converter name
	Constant        string // MappingConstant: literal value
	Path            string // MappingJSONPath: path expression
	RelatedEntityID string // MappingReference: projection-entity id of the target
	CreateRelated   bool   // MappingReference: create the target when absent
}

// EntityMetadata describes one persisted type within a projection
type EntityMetadata struct {
	ID           string
	Name         string // internal name, resolves the persisted type
	TableID      string
	MappingType  string // read/write tag
	Identity     bool
	REST         bool
	ExternalName string // defaults to Name when absent
	Fields       []*FieldMetadata
}

// EffectiveName returns the externally-visible entity name
func (e *EntityMetadata) EffectiveName() string {
	if e.ExternalName != "" {
		return e.ExternalName
	}
	return e.Name
}

// Field returns a field by external name
func (e *EntityMetadata) Field(name string) (*FieldMetadata, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// ProjectionMetadata describes one named API surface: the set of entities
// and fields exposed together.
type ProjectionMetadata struct {
	ID            string
	Name          string
	Description   string
	Transport     string // transport-protocol flag
	ModuleName    string
	InDevelopment bool // only in-development modules are loadable
	Entities      []*EntityMetadata
}

// Entity returns the projection entity matching the given name, by external
// name when present, else by internal name.
func (p *ProjectionMetadata) Entity(name string) (*EntityMetadata, bool) {
	for _, e := range p.Entities {
		if e.EffectiveName() == name {
			return e, true
		}
	}
	for _, e := range p.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// SortFields orders fields by ordinal; fields without an ordinal sort last,
// preserving their load order.
func SortFields(fields []*FieldMetadata) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		switch {
		case a.OrdinalSet && b.OrdinalSet:
			return a.Ordinal < b.Ordinal
		case a.OrdinalSet:
			return true
		default:
			return false
		}
	})
}
