package models

// OffsetPage is a numbered page of results for admin listings.
type OffsetPage[T any] struct {
	Items      []T
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// CursorPage is a keyset page. NextCursor is empty when HasMore is false.
type CursorPage[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// NewOffsetPage fills in the derived page count.
func NewOffsetPage[T any](items []T, total int64, page, pageSize int) *OffsetPage[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	if items == nil {
		items = []T{}
	}
	return &OffsetPage[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*limit well inside a Postgres BIGINT offset.
	MaxPage = 1_000_000
)

// NormalizePage clamps page into [1, MaxPage] and limit into [1, MaxPageSize].
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
