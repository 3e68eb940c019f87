// Package audit applies created/updated timestamps and user stamps to
// audited entity records.
package audit

import (
	"context"
	"time"

	"github.com/facet-dev/facet/internal/entity"
)

// Conventional audit property names
const (
	CreatedAtProperty = "created_at"
	CreatedByProperty = "created_by"
	UpdatedAtProperty = "updated_at"
	UpdatedByProperty = "updated_by"
)

// UserProvider yields the acting user for the current request
type UserProvider func(ctx context.Context) string

// Stamper writes audit properties on records whose class is audited
type Stamper struct {
	now  func() time.Time
	user UserProvider
}

// NewStamper creates a stamper. A nil provider stamps "system".
func NewStamper(user UserProvider) *Stamper {
	if user == nil {
		user = func(context.Context) string { return "system" }
	}
	return &Stamper{
		now:  time.Now,
		user: user,
	}
}

// WithClock overrides the clock (for tests)
func (s *Stamper) WithClock(now func() time.Time) *Stamper {
	s.now = now
	return s
}

// Stamp applies audit properties to the record. Creation stamps are only
// written when absent; update stamps are always refreshed. Properties the
// class does not declare are skipped.
func (s *Stamper) Stamp(ctx context.Context, rec *entity.Record) {
	if rec == nil || !rec.Class().Audited {
		return
	}

	now := s.now().UTC()
	user := s.user(ctx)
	attrs := rec.Attributes()

	if rec.Class().HasProperty(CreatedAtProperty) {
		if v, ok := attrs[CreatedAtProperty]; !ok || v == nil {
			attrs[CreatedAtProperty] = now
		}
	}
	if rec.Class().HasProperty(CreatedByProperty) {
		if v, ok := attrs[CreatedByProperty]; !ok || v == nil {
			attrs[CreatedByProperty] = user
		}
	}
	if rec.Class().HasProperty(UpdatedAtProperty) {
		attrs[UpdatedAtProperty] = now
	}
	if rec.Class().HasProperty(UpdatedByProperty) {
		attrs[UpdatedByProperty] = user
	}
}
