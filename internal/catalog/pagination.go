package catalog

const (
	// DefaultPage is the page the server assumes when none is given.
	DefaultPage = 1
	// DefaultLimit is the page size the server assumes when none is given.
	DefaultLimit = 10
)

// Pagination contains server-reported metadata for paginated listings.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, limit int, total int64) Pagination {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page <= 0 {
		page = DefaultPage
	}
	if total < 0 {
		total = 0
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: int(pages)}
}

// ClampPage bounds page to [1, Pages]. An empty listing clamps to page 1.
func (p Pagination) ClampPage(page int) int {
	if page > p.Pages {
		page = p.Pages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// HasNext reports whether a page after page exists.
func (p Pagination) HasNext(page int) bool {
	return page < p.Pages
}

// HasPrev reports whether a page before page exists.
func (p Pagination) HasPrev(page int) bool {
	return page > 1
}
