package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/facet-dev/facet/internal/convert"
	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/meta"
	"github.com/facet-dev/facet/internal/repo"
	"github.com/facet-dev/facet/internal/store"
)

func TestRenderDomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown metadata", err: fmt.Errorf("wrap: %w", meta.ErrNotFound), want: http.StatusNotFound},
		{name: "missing row", err: store.ErrNotFound, want: http.StatusNotFound},
		{name: "conversion", err: fmt.Errorf("%w: missing mandatory field", convert.ErrConversion), want: http.StatusBadRequest},
		{name: "class resolution", err: entity.ErrClassNotFound, want: http.StatusInternalServerError},
		{name: "unexpected", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RenderDomainError(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRenderDomainErrorValidation(t *testing.T) {
	errs := repo.NewValidationErrors()
	errs.Add("name", "is required")

	rec := httptest.NewRecorder()
	RenderDomainError(rec, errs)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"validation_failed"`)
	assert.Contains(t, rec.Body.String(), `"name"`)
}
