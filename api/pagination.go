package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// PaginationMeta is embedded in paginated list responses. Pages are
// numbered from 1.
type PaginationMeta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// parsePage reads the "page" and "page_size" query parameters. Missing,
// non-numeric or non-positive values fall back to page 1 and
// defaultPageSize; page_size is capped at maxPageSize.
func parsePage(r *http.Request) (page, size int) {
	q := r.URL.Query()
	page = positiveInt(q.Get("page"), 1)
	size = min(positiveInt(q.Get("page_size"), defaultPageSize), maxPageSize)
	return page, size
}

func positiveInt(v string, fallback int) int {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return fallback
}

// paginate returns the requested page of items. A page past the end is
// empty rather than an error.
func paginate[T any](items []T, page, size int) ([]T, PaginationMeta) {
	total := len(items)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	meta := PaginationMeta{
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
		HasMore:    end < total,
	}
	return items[start:end], meta
}
