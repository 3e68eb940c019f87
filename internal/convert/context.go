// Package convert turns persisted records into wire documents and back,
// dispatching each field to the strategy its mapping kind selects.
package convert

import (
	"github.com/facet-dev/facet/internal/entity"
)

// Context is the per-conversion-call state: the complete source document,
// so strategies can read sibling fields, and the set of already-visited
// records that breaks recursion over self-referential entity graphs.
//
// A Context must never be shared across concurrent conversions.
type Context struct {
	doc     map[string]interface{}
	visited map[interface{}]struct{}
}

// visitKey identifies a persisted record across separate loads of the same row
type visitKey struct {
	class string
	id    string
}

// NewContext creates a context carrying the full source document
func NewContext(doc map[string]interface{}) *Context {
	return &Context{
		doc:     doc,
		visited: make(map[interface{}]struct{}),
	}
}

// Document returns the full source document
func (c *Context) Document() map[string]interface{} {
	return c.doc
}

// Visited reports whether the record was seen before in this context and
// marks it visited as a side effect. Records with an identity are keyed by
// class and id; transient records fall back to pointer identity.
func (c *Context) Visited(rec *entity.Record) bool {
	var key interface{}
	if id := rec.ID(); id != "" {
		key = visitKey{class: rec.Class().Name, id: id}
	} else {
		key = rec
	}

	if _, seen := c.visited[key]; seen {
		return true
	}
	c.visited[key] = struct{}{}
	return false
}
