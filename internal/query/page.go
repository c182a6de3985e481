package query

import "gorm.io/gorm"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is a zero-based page request.
type Page struct {
	Index int
	Size  int
}

func NewPage(index, size int) Page {
	if index < 0 {
		index = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Index: index, Size: size}
}

func (p Page) Scope() Predicate {
	p = NewPage(p.Index, p.Size)
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Index * p.Size).Limit(p.Size)
	}
}

// Pagination describes a page for clients. CurrentPage is one-based.
type Pagination struct {
	CurrentPage  int   `json:"current_page"`
	TotalPages   int   `json:"total_pages"`
	TotalItems   int64 `json:"total_items"`
	ItemsPerPage int   `json:"items_per_page"`
}

func (p Page) Describe(total int64) Pagination {
	p = NewPage(p.Index, p.Size)
	pages := 0
	if total > 0 {
		pages = int((total + int64(p.Size) - 1) / int64(p.Size))
	}
	return Pagination{
		CurrentPage:  p.Index + 1,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: p.Size,
	}
}
