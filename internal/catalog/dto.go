package catalog

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// CreateProductInput is the payload of POST /products.
type CreateProductInput struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" validate:"positive"`
}

// UpdateProductInput is a partial update. Nil fields are left unchanged by
// the server.
type UpdateProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
}

// IsEmpty reports whether the update changes nothing.
func (u UpdateProductInput) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Price == nil
}

// CreateReviewInput is the payload of POST /reviews.
type CreateReviewInput struct {
	Content   string `json:"content" validate:"required"`
	ProductID int64  `json:"product_id" validate:"gt=0"`
}

// ProductForm holds raw product form input as typed by the user.
type ProductForm struct {
	Name        string
	Description string
	Price       string
}

// ParseCreateForm turns form input into a validated CreateProductInput.
func ParseCreateForm(form ProductForm) (CreateProductInput, error) {
	in := CreateProductInput{
		Name:        strings.TrimSpace(form.Name),
		Description: strings.TrimSpace(form.Description),
	}
	fields := map[string]string{}
	price, err := parsePrice(form.Price)
	if err != nil {
		fields[FieldPrice] = MsgPriceInvalid
	} else {
		in.Price = price
	}
	var verr *ValidationError
	if errors.As(in.Validate(), &verr) {
		for k, v := range verr.Fields {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		return CreateProductInput{}, &ValidationError{Fields: fields}
	}
	return in, nil
}

// BuildUpdate converts form input into a partial update. Empty inputs are
// omitted, and so are values equal to current when current is known.
func BuildUpdate(current *Product, form ProductForm) (UpdateProductInput, error) {
	var in UpdateProductInput
	if name := strings.TrimSpace(form.Name); name != "" && (current == nil || name != current.Name) {
		in.Name = &name
	}
	if desc := strings.TrimSpace(form.Description); desc != "" && (current == nil || desc != current.Description) {
		in.Description = &desc
	}
	if raw := strings.TrimSpace(form.Price); raw != "" {
		price, err := parsePrice(raw)
		if err != nil {
			return UpdateProductInput{}, NewValidationError(FieldPrice, MsgPriceInvalid)
		}
		if current == nil || !price.Equal(current.Price) {
			in.Price = &price
		}
	}
	if err := in.Validate(); err != nil {
		return UpdateProductInput{}, err
	}
	return in, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
