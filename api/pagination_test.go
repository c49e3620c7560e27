package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePage(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantPage int
		wantSize int
	}{
		{"defaults", "", 1, defaultPageSize},
		{"custom page", "page=3", 3, defaultPageSize},
		{"custom size", "page_size=25", 1, 25},
		{"both", "page=2&page_size=5", 2, 5},
		{"size capped", "page_size=500", 1, maxPageSize},
		{"zero page", "page=0", 1, defaultPageSize},
		{"negative page", "page=-4", 1, defaultPageSize},
		{"negative size", "page_size=-1", 1, defaultPageSize},
		{"non-numeric", "page=two&page_size=ten", 1, defaultPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/posts"
			if tt.query != "" {
				url += "?" + tt.query
			}
			page, size := parsePage(httptest.NewRequest("GET", url, nil))
			assert.Equal(t, tt.wantPage, page, "page")
			assert.Equal(t, tt.wantSize, size, "page_size")
		})
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	tests := []struct {
		name       string
		items      []int
		page, size int
		wantFirst  int
		wantLen    int
		wantPages  int
		wantMore   bool
	}{
		{name: "first page", items: items, page: 1, size: 10, wantFirst: 0, wantLen: 10, wantPages: 3, wantMore: true},
		{name: "second page", items: items, page: 2, size: 10, wantFirst: 10, wantLen: 10, wantPages: 3, wantMore: true},
		{name: "last partial page", items: items, page: 3, size: 10, wantFirst: 20, wantLen: 5, wantPages: 3},
		{name: "past the end", items: items, page: 9, size: 10, wantFirst: -1, wantLen: 0, wantPages: 3},
		{name: "exact fit", items: items[:10], page: 1, size: 10, wantFirst: 0, wantLen: 10, wantPages: 1},
		{name: "empty", items: nil, page: 1, size: 10, wantFirst: -1, wantLen: 0, wantPages: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, meta := paginate(tt.items, tt.page, tt.size)
			assert.Len(t, got, tt.wantLen)
			if tt.wantFirst >= 0 {
				assert.Equal(t, tt.wantFirst, got[0])
			}
			assert.Equal(t, len(tt.items), meta.Total)
			assert.Equal(t, tt.page, meta.Page)
			assert.Equal(t, tt.size, meta.PageSize)
			assert.Equal(t, tt.wantPages, meta.TotalPages)
			assert.Equal(t, tt.wantMore, meta.HasMore)
		})
	}
}
