package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facet-dev/facet/internal/entity"
)

func auditedClass() *entity.Class {
	class := entity.NewClass("Invoice", "billing_invoice")
	class.Audited = true
	class.AddProperty(&entity.Property{Name: "id", Kind: entity.PropString})
	class.AddProperty(&entity.Property{Name: "created_at", Kind: entity.PropTime})
	class.AddProperty(&entity.Property{Name: "created_by", Kind: entity.PropString})
	class.AddProperty(&entity.Property{Name: "updated_at", Kind: entity.PropTime})
	class.AddProperty(&entity.Property{Name: "updated_by", Kind: entity.PropString})
	return class
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStampNewRecord(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	stamper := NewStamper(func(context.Context) string { return "alice" }).WithClock(fixedClock(now))

	rec := entity.NewRecord(auditedClass())
	stamper.Stamp(context.Background(), rec)

	attrs := rec.Attributes()
	assert.Equal(t, now, attrs[CreatedAtProperty])
	assert.Equal(t, "alice", attrs[CreatedByProperty])
	assert.Equal(t, now, attrs[UpdatedAtProperty])
	assert.Equal(t, "alice", attrs[UpdatedByProperty])
}

func TestStampPreservesCreationStamps(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	stamper := NewStamper(func(context.Context) string { return "bob" }).WithClock(fixedClock(now))

	rec := entity.NewRecord(auditedClass())
	require.NoError(t, rec.Set(CreatedAtProperty, created))
	require.NoError(t, rec.Set(CreatedByProperty, "alice"))

	stamper.Stamp(context.Background(), rec)

	attrs := rec.Attributes()
	assert.Equal(t, created, attrs[CreatedAtProperty])
	assert.Equal(t, "alice", attrs[CreatedByProperty])
	assert.Equal(t, now, attrs[UpdatedAtProperty])
	assert.Equal(t, "bob", attrs[UpdatedByProperty])
}

func TestStampSkipsUnauditedClass(t *testing.T) {
	class := entity.NewClass("Note", "notes")
	class.AddProperty(&entity.Property{Name: "id", Kind: entity.PropString})
	class.AddProperty(&entity.Property{Name: "updated_at", Kind: entity.PropTime})

	stamper := NewStamper(nil)
	rec := entity.NewRecord(class)
	stamper.Stamp(context.Background(), rec)

	_, ok := rec.Attributes()[UpdatedAtProperty]
	assert.False(t, ok)
}

func TestStampSkipsUndeclaredProperties(t *testing.T) {
	class := entity.NewClass("Event", "events")
	class.Audited = true
	class.AddProperty(&entity.Property{Name: "id", Kind: entity.PropString})
	class.AddProperty(&entity.Property{Name: "updated_at", Kind: entity.PropTime})

	stamper := NewStamper(nil)
	rec := entity.NewRecord(class)
	stamper.Stamp(context.Background(), rec)

	attrs := rec.Attributes()
	assert.NotContains(t, attrs, CreatedAtProperty)
	assert.NotContains(t, attrs, CreatedByProperty)
	assert.Contains(t, attrs, UpdatedAtProperty)
	assert.NotContains(t, attrs, UpdatedByProperty)
}

func TestStampDefaultUserIsSystem(t *testing.T) {
	stamper := NewStamper(nil)
	rec := entity.NewRecord(auditedClass())
	stamper.Stamp(context.Background(), rec)

	assert.Equal(t, "system", rec.Attributes()[CreatedByProperty])
}
