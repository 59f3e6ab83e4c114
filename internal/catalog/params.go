package catalog

// SortField is a column the server can order listings by.
type SortField string

const (
	SortName      SortField = "name"
	SortPrice     SortField = "price"
	SortCreatedAt SortField = "created_at"
)

// Valid reports whether the server accepts f.
func (f SortField) Valid() bool {
	switch f {
	case SortName, SortPrice, SortCreatedAt:
		return true
	}
	return false
}

// SortOrder is the listing direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid reports whether the server accepts o.
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// Flip returns the opposite direction.
func (o SortOrder) Flip() SortOrder {
	if o == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// ProductListParams are the query parameters of GET /products.
type ProductListParams struct {
	Page   int
	Limit  int
	Sort   SortField
	Order  SortOrder
	Search string
}

// Normalize applies the same defaults the server applies, so that two
// parameter sets the server treats alike compare equal.
func (p ProductListParams) Normalize() ProductListParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if !p.Sort.Valid() {
		p.Sort = SortCreatedAt
	}
	if !p.Order.Valid() {
		p.Order = SortDesc
	}
	return p
}

// ReviewListParams are the query parameters of GET /products/{id}/reviews.
type ReviewListParams struct {
	ProductID int64
	Page      int
	Limit     int
	Sort      SortField
	Order     SortOrder
}

// Normalize applies server defaults. ProductID is left untouched.
func (p ReviewListParams) Normalize() ReviewListParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if !p.Sort.Valid() {
		p.Sort = SortCreatedAt
	}
	if !p.Order.Valid() {
		p.Order = SortDesc
	}
	return p
}
