// Package entity defines the runtime description of persisted types: class
// descriptors, the registry they are declared in, the resolver that maps
// table identifiers to classes, and the record representation used for all
// reads and writes.
package entity

import (
	"fmt"
)

// PropertyKind represents the declared type of a persisted property
type PropertyKind int

const (
	// PropString is a text property
	PropString PropertyKind = iota
	// PropInt is an integer property
	PropInt
	// PropFloat is a floating-point property
	PropFloat
	// PropBool is a boolean property
	PropBool
	// PropTime is a timestamp property
	PropTime
	// PropDate is a date-only property
	PropDate
	// PropJSON is a JSON document property
	PropJSON
	// PropReference is a relation to another persisted type
	PropReference
)

// String returns the string representation of the property kind
func (k PropertyKind) String() string {
	switch k {
	case PropString:
		return "string"
	case PropInt:
		return "int"
	case PropFloat:
		return "float"
	case PropBool:
		return "bool"
	case PropTime:
		return "time"
	case PropDate:
		return "date"
	case PropJSON:
		return "json"
	case PropReference:
		return "reference"
	default:
		return "unknown"
	}
}

// ParsePropertyKind converts a string to a PropertyKind
func ParsePropertyKind(s string) (PropertyKind, error) {
	switch s {
	case "string":
		return PropString, nil
	case "int":
		return PropInt, nil
	case "float":
		return PropFloat, nil
	case "bool":
		return PropBool, nil
	case "time":
		return PropTime, nil
	case "date":
		return PropDate, nil
	case "json":
		return PropJSON, nil
	case "reference":
		return PropReference, nil
	default:
		return 0, fmt.Errorf("unknown property kind: %s", s)
	}
}

// Property describes one declared property of a persisted type
type Property struct {
	Name     string
	Column   string       // storage column; defaults to Name when empty
	Kind     PropertyKind
	Required bool
	Target   string // table identifier of the related class (PropReference only)
}

// ColumnName returns the storage column for the property. Reference
// properties default to the conventional <name>_id foreign key column.
func (p *Property) ColumnName() string {
	if p.Column != "" {
		return p.Column
	}
	if p.Kind == PropReference {
		return p.Name + "_id"
	}
	return p.Name
}

// Class describes one persisted type: its storage table, stable table
// identifier, identity property, and declared properties.
type Class struct {
	Name                 string
	TableName            string
	TableID              string // stable table identifier; may be empty
	IdentityProperty     string
	InstanceNameProperty string // label property used for reference stubs
	Audited              bool
	Properties           map[string]*Property
}

// NewClass creates a class descriptor with an empty property set and the
// conventional "id" identity property.
func NewClass(name, tableName string) *Class {
	return &Class{
		Name:             name,
		TableName:        tableName,
		IdentityProperty: "id",
		Properties:       make(map[string]*Property),
	}
}

// AddProperty declares a property on the class
func (c *Class) AddProperty(p *Property) *Class {
	c.Properties[p.Name] = p
	return c
}

// Property returns a declared property by name
func (c *Class) Property(name string) (*Property, bool) {
	p, ok := c.Properties[name]
	return p, ok
}

// HasProperty reports whether the class declares the named property
func (c *Class) HasProperty(name string) bool {
	_, ok := c.Properties[name]
	return ok
}
