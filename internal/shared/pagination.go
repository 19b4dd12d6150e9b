package shared

import "math"

// Pagination describes one window of a listing.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes listing metadata, coercing out-of-range
// inputs to the first page.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset of this window.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// HasNext reports whether another window follows this one.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}
