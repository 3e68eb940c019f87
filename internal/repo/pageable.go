package repo

// SortSpec is one requested sort property with its direction
type SortSpec struct {
	Property string
	Desc     bool
}

// Pageable is a page request: zero-based page number, page size, and the
// requested sort order.
type Pageable struct {
	Page int
	Size int
	Sort []SortSpec
}

// DefaultPageSize applies when a page request carries no size
const DefaultPageSize = 20

// Offset returns the row offset of the page
func (p Pageable) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return p.Page * p.Limit()
}

// Limit returns the page size, defaulted when unset
func (p Pageable) Limit() int {
	if p.Size <= 0 {
		return DefaultPageSize
	}
	return p.Size
}

// Page is one page of converted documents plus the total match count
type Page struct {
	Items []map[string]interface{} `json:"items"`
	Total int                      `json:"total"`
	Page  int                      `json:"page"`
	Size  int                      `json:"size"`
}
