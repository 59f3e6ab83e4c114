package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	cases := []struct {
		name        string
		page, limit int
		total       int64
		wantPages   int
		wantPage    int
		wantLimit   int
	}{
		{"exact", 1, 12, 24, 2, 1, 12},
		{"remainder", 1, 12, 20, 2, 1, 12},
		{"empty", 1, 12, 0, 0, 1, 12},
		{"defaults", 0, 0, 21, 3, 1, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPagination(tc.page, tc.limit, tc.total)
			assert.Equal(t, tc.wantPages, p.Pages)
			assert.Equal(t, tc.wantPage, p.Page)
			assert.Equal(t, tc.wantLimit, p.Limit)
		})
	}
}

func TestNewPaginationLargeLimit(t *testing.T) {
	p := NewPagination(1, math.MaxInt, 5)
	assert.Equal(t, 1, p.Pages)
	assert.Equal(t, 0, NewPagination(1, math.MaxInt, 0).Pages)
	assert.Equal(t, 1, NewPagination(1, math.MaxInt, math.MaxInt64).Pages)
}

func TestPaginationClamp(t *testing.T) {
	p := NewPagination(1, 12, 20)
	assert.Equal(t, 2, p.ClampPage(3))
	assert.Equal(t, 1, p.ClampPage(0))
	assert.Equal(t, 2, p.ClampPage(2))
	assert.True(t, p.HasNext(1))
	assert.False(t, p.HasNext(2))
	assert.False(t, p.HasPrev(1))

	assert.Equal(t, 1, NewPagination(1, 12, 0).ClampPage(4))
}

func TestParamsNormalize(t *testing.T) {
	p := ProductListParams{Sort: "bogus", Order: "up"}.Normalize()
	assert.Equal(t, ProductListParams{Page: 1, Limit: 10, Sort: SortCreatedAt, Order: SortDesc}, p)

	r := ReviewListParams{ProductID: 7, Page: 2, Limit: 5, Sort: SortCreatedAt, Order: SortAsc}
	assert.Equal(t, r, r.Normalize())
	assert.Equal(t, SortAsc, SortDesc.Flip())
	assert.Equal(t, SortDesc, SortAsc.Flip())
}

func TestProductJSONAcceptsLegacyFieldNames(t *testing.T) {
	raw := `{"ID":3,"CreatedAt":"2024-05-01T10:00:00Z","UpdatedAt":"2024-05-02T10:00:00Z","name":"Lamp","price":19.99}`
	var p Product
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.EqualValues(t, 3, p.ID)
	assert.Equal(t, "Lamp", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), p.CreatedAt.UTC())
	assert.Equal(t, time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC), p.UpdatedAt.UTC())

	raw = `{"id":4,"created_at":"2024-06-01T00:00:00Z","name":"Desk","price":"5.50"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), p.CreatedAt.UTC())
	assert.Equal(t, "5.5", p.Price.String())

	var r Review
	require.NoError(t, json.Unmarshal([]byte(`{"ID":1,"product_id":4,"content":"ok","CreatedAt":"2024-06-01T00:00:00Z"}`), &r))
	assert.EqualValues(t, 4, r.ProductID)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestParseCreateForm(t *testing.T) {
	in, err := ParseCreateForm(ProductForm{Name: "  Lamp ", Price: "19.99"})
	require.NoError(t, err)
	assert.Equal(t, "Lamp", in.Name)
	assert.Equal(t, "19.99", in.Price.String())

	_, err = ParseCreateForm(ProductForm{Name: " ", Price: "abc"})
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgNameRequired, verr.Field(FieldName))
	assert.Equal(t, MsgPriceInvalid, verr.Field(FieldPrice))

	tiny, err := ParseCreateForm(ProductForm{Name: "Sample", Price: "1e-400"})
	require.NoError(t, err, "tiny positive prices are valid")
	assert.True(t, tiny.Price.IsPositive())

	for _, price := range []string{"", "0", "-3", "-1e-400"} {
		_, err = ParseCreateForm(ProductForm{Name: "Lamp", Price: price})
		require.ErrorAs(t, err, &verr, "price %q", price)
		assert.Equal(t, MsgPriceInvalid, verr.Field(FieldPrice))
		assert.Empty(t, verr.Field(FieldName))
	}
}

func TestBuildUpdateSendsOnlyChangedFields(t *testing.T) {
	current := &Product{ID: 1, Name: "Lamp", Description: "Brass", Price: decimal.RequireFromString("10.00")}

	in, err := BuildUpdate(current, ProductForm{Name: "Lamp", Price: "19.99"})
	require.NoError(t, err)
	assert.Nil(t, in.Name)
	assert.Nil(t, in.Description)
	require.NotNil(t, in.Price)
	assert.Equal(t, "19.99", in.Price.String())

	_, err = BuildUpdate(current, ProductForm{Name: "Lamp", Price: "10"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgNoChanges, verr.Field(FieldForm))

	_, err = BuildUpdate(current, ProductForm{Price: "-1"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgPriceInvalid, verr.Field(FieldPrice))

	_, err = BuildUpdate(current, ProductForm{Price: "cheap"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgPriceInvalid, verr.Field(FieldPrice))

	in, err = BuildUpdate(current, ProductForm{Price: "1e-400"})
	require.NoError(t, err)
	require.NotNil(t, in.Price)
	assert.True(t, in.Price.IsPositive())

	in, err = BuildUpdate(nil, ProductForm{Name: "Lamp"})
	require.NoError(t, err)
	require.NotNil(t, in.Name)
	assert.Equal(t, "Lamp", *in.Name)
}

func TestReviewValidation(t *testing.T) {
	err := CreateReviewInput{Content: "   ", ProductID: 1}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgContentRequired, verr.Field(FieldContent))

	err = CreateReviewInput{Content: "fine"}.Validate()
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgProductRequired, verr.Field(FieldProductID))

	assert.NoError(t, CreateReviewInput{Content: "fine", ProductID: 2}.Validate())
}

func TestRemoteErrorClassification(t *testing.T) {
	notFound := &RemoteError{Op: "get product", StatusCode: http.StatusNotFound, Message: "Product not found"}
	wrapped := fmt.Errorf("detail: %w", notFound)
	assert.True(t, IsNotFound(wrapped))
	assert.ErrorIs(t, wrapped, ErrRemote)
	assert.Equal(t, "get product: 404 Not Found: Product not found", notFound.Error())

	transport := &RemoteError{Op: "list products", Err: errors.New("connection refused")}
	assert.False(t, IsNotFound(transport))
	assert.ErrorIs(t, transport, ErrRemote)
	assert.Equal(t, "list products: connection refused", transport.Error())

	assert.False(t, errors.Is(NewValidationError(FieldName, MsgNameRequired), ErrRemote))
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{FieldPrice: MsgPriceInvalid, FieldName: MsgNameRequired}}
	assert.Equal(t, MsgNameRequired+"; "+MsgPriceInvalid, err.Error())
}
