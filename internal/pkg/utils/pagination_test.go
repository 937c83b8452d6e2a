package utils

import (
	"net/http/httptest"
	"testing"
)

func TestParsePaginationParams(t *testing.T) {
	tests := []struct {
		query string
		want  PaginationParams
	}{
		{"", PaginationParams{Page: 1, PageSize: DefaultPageSize, Offset: 0}},
		{"?page=3&page_size=10", PaginationParams{Page: 3, PageSize: 10, Offset: 20}},
		{"?page=0&page_size=-5", PaginationParams{Page: 1, PageSize: DefaultPageSize, Offset: 0}},
		{"?page=2&page_size=1000", PaginationParams{Page: 2, PageSize: MaxPageSize, Offset: MaxPageSize}},
		{"?page=abc", PaginationParams{Page: 1, PageSize: DefaultPageSize, Offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/entitlement/events"+tt.query, nil)
			if got := ParsePaginationParams(r); got != tt.want {
				t.Errorf("ParsePaginationParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewPaginatedResponse_TotalPages(t *testing.T) {
	tests := []struct {
		total    int64
		size     int
		wantPage int
	}{
		{0, 20, 0},
		{7, 5, 2},
		{10, 5, 2},
		{11, 5, 3},
	}

	for _, tt := range tests {
		got := NewPaginatedResponse(nil, 1, tt.size, tt.total)
		if got.TotalPages != tt.wantPage {
			t.Errorf("total=%d size=%d: TotalPages = %d, want %d", tt.total, tt.size, got.TotalPages, tt.wantPage)
		}
	}
}
