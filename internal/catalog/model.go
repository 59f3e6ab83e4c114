package catalog

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product as served by the remote API.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UnmarshalJSON accepts both snake_case timestamps and the Go-default
// CreatedAt/UpdatedAt names emitted by some deployments of the API.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	aux := struct {
		*plain
		LegacyCreatedAt *time.Time `json:"CreatedAt"`
		LegacyUpdatedAt *time.Time `json:"UpdatedAt"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() && aux.LegacyCreatedAt != nil {
		p.CreatedAt = *aux.LegacyCreatedAt
	}
	if p.UpdatedAt.IsZero() && aux.LegacyUpdatedAt != nil {
		p.UpdatedAt = *aux.LegacyUpdatedAt
	}
	return nil
}

// Review is a product review. Reviews always belong to exactly one product.
type Review struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON mirrors Product.UnmarshalJSON for the review timestamp.
func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	aux := struct {
		*plain
		LegacyCreatedAt *time.Time `json:"CreatedAt"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() && aux.LegacyCreatedAt != nil {
		r.CreatedAt = *aux.LegacyCreatedAt
	}
	return nil
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T
	Pagination Pagination
}
