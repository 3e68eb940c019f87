package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownProperty is returned when a path names a property the class
	// does not declare.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrNilRelation is returned when a write path traverses a relation that
	// is not loaded.
	ErrNilRelation = errors.New("relation is not loaded")
)

// Record is the in-memory representation of one persisted object: its class,
// scalar attribute values, and any loaded relations. Property access goes
// through a path walker restricted to the class's declared properties.
type Record struct {
	class     *Class
	attrs     map[string]interface{}
	relations map[string]*Record
}

// NewRecord creates an empty record of the given class
func NewRecord(class *Class) *Record {
	return &Record{
		class:     class,
		attrs:     make(map[string]interface{}),
		relations: make(map[string]*Record),
	}
}

// Class returns the record's class descriptor
func (r *Record) Class() *Class {
	return r.class
}

// ID returns the record's identity value as a string, or "" when unset
func (r *Record) ID() string {
	v, ok := r.attrs[r.class.IdentityProperty]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// SetID sets the record's identity value
func (r *Record) SetID(id string) {
	r.attrs[r.class.IdentityProperty] = id
}

// InstanceName returns the record's human-readable label: the declared
// instance-name property when set and non-empty, else the identity value.
func (r *Record) InstanceName() string {
	if p := r.class.InstanceNameProperty; p != "" {
		if v, ok := r.attrs[p]; ok && v != nil {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return r.ID()
}

// Attributes returns the record's scalar attribute map. Callers must not
// mutate it outside the path walker.
func (r *Record) Attributes() map[string]interface{} {
	return r.attrs
}

// Relation returns a loaded relation by property name, or nil
func (r *Record) Relation(name string) *Record {
	return r.relations[name]
}

// SetRelation sets or clears a relation by property name
func (r *Record) SetRelation(name string, rel *Record) {
	if rel == nil {
		delete(r.relations, name)
		return
	}
	r.relations[name] = rel
}

// Get reads a (possibly dotted) property path. Intermediate segments must
// be declared reference properties; a nil intermediate relation short-circuits
// to a nil value. A terminal reference segment yields the related *Record.
func (r *Record) Get(path string) (interface{}, error) {
	segments := strings.Split(path, ".")
	current := r

	for i, segment := range segments {
		prop, ok := current.class.Property(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, current.class.Name, segment)
		}

		last := i == len(segments)-1
		if prop.Kind == PropReference {
			rel := current.relations[segment]
			if last {
				if rel == nil {
					return nil, nil
				}
				return rel, nil
			}
			if rel == nil {
				return nil, nil
			}
			current = rel
			continue
		}

		if !last {
			return nil, fmt.Errorf("%w: %s.%s is not a reference", ErrUnknownProperty, current.class.Name, segment)
		}
		return current.attrs[segment], nil
	}

	return nil, nil
}

// Set writes a (possibly dotted) property path. A terminal reference
// segment accepts a *Record or nil; traversing an unloaded relation fails.
func (r *Record) Set(path string, value interface{}) error {
	segments := strings.Split(path, ".")
	current := r

	for i, segment := range segments {
		prop, ok := current.class.Property(segment)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownProperty, current.class.Name, segment)
		}

		last := i == len(segments)-1
		if !last {
			if prop.Kind != PropReference {
				return fmt.Errorf("%w: %s.%s is not a reference", ErrUnknownProperty, current.class.Name, segment)
			}
			rel := current.relations[segment]
			if rel == nil {
				return fmt.Errorf("%w: %s.%s", ErrNilRelation, current.class.Name, segment)
			}
			current = rel
			continue
		}

		if prop.Kind == PropReference {
			if value == nil {
				current.SetRelation(segment, nil)
				return nil
			}
			rel, ok := value.(*Record)
			if !ok {
				return fmt.Errorf("property %s.%s requires a record value, got %T", current.class.Name, segment, value)
			}
			current.SetRelation(segment, rel)
			return nil
		}

		current.attrs[segment] = value
		return nil
	}

	return nil
}
