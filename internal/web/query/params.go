// Package query parses list-endpoint query strings into paging, sorting,
// and filter criteria.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/facet-dev/facet/internal/repo"
)

// Reserved parameter names consumed by paging and sorting. Everything
// else is treated as a property filter.
const (
	ParamPage = "page"
	ParamSize = "size"
	ParamSort = "sort"
)

// MaxPageSize caps the page size a client may request.
const MaxPageSize = 200

// Params holds the parsed list criteria for a request.
type Params struct {
	Pageable repo.Pageable
	Filters  map[string]string
}

// Parse extracts paging, sorting, and filter parameters from a query
// string. Reserved keys never reach the filter map. Invalid numeric
// values fall back to defaults rather than failing the request.
func Parse(values url.Values) Params {
	p := Params{
		Pageable: repo.Pageable{Page: 0, Size: repo.DefaultPageSize},
		Filters:  make(map[string]string),
	}

	if raw := values.Get(ParamPage); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page >= 0 {
			p.Pageable.Page = page
		}
	}

	if raw := values.Get(ParamSize); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			if size > MaxPageSize {
				size = MaxPageSize
			}
			p.Pageable.Size = size
		}
	}

	if raw := values.Get(ParamSort); raw != "" {
		p.Pageable.Sort = parseSort(raw)
	}

	for key, vals := range values {
		if key == ParamPage || key == ParamSize || key == ParamSort {
			continue
		}
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		p.Filters[key] = vals[0]
	}

	return p
}

// parseSort converts a comma-separated sort expression into sort specs.
// A leading '-' marks a property as descending.
func parseSort(raw string) []repo.SortSpec {
	parts := strings.Split(raw, ",")
	specs := make([]repo.SortSpec, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spec := repo.SortSpec{Property: part}
		if strings.HasPrefix(part, "-") {
			spec.Property = part[1:]
			spec.Desc = true
		}
		if spec.Property == "" {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}
