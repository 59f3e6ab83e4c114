package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/catalogsync/internal/app"
	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/testing/catalogtest"
)

func seeded(t *testing.T) *catalogtest.Harness {
	t.Helper()
	h := catalogtest.New(t, catalogtest.Options{})
	h.Store.Seed()
	return h
}

func productID(t *testing.T, h *catalogtest.Harness, name string) string {
	t.Helper()
	page := h.Store.ListProducts(catalog.ProductListParams{Limit: 100, Search: name})
	require.Len(t, page.Items, 1, name)
	return strconv.FormatInt(page.Items[0].ID, 10)
}

func runCLI(t *testing.T, h *catalogtest.Harness, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := New(Options{
		NewStack: func(ctx context.Context, apiURL string) (*app.Stack, error) {
			if apiURL == "" {
				apiURL = h.URL
			}
			return app.NewStack(ctx, app.StackParams{
				Config: &app.Config{
					APIURL:      apiURL,
					APITimeout:  2 * time.Second,
					CacheGCTime: time.Minute,
				},
				Logger: catalogtest.Logger(),
			})
		},
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	c.SetArgs(args)
	err := c.Execute(context.Background())
	return stdout.String(), err
}

func TestProductsList(t *testing.T) {
	h := seeded(t)

	out, err := runCLI(t, h, "", "products", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID  NAME")
	assert.Contains(t, out, "Notebook Set")
	assert.Contains(t, out, "Page 1 of 2 (14 products)")

	out, err = runCLI(t, h, "", "products", "list", "--search", "LAMP", "--json")
	require.NoError(t, err)
	var page catalog.Page[catalog.Product]
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Vintage Desk Lamp", page.Items[0].Name)

	out, err = runCLI(t, h, "", "products", "list", "--sort", "price", "--order", "asc", "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Notebook Set")
	assert.NotContains(t, out, "Standing Desk")

	_, err = runCLI(t, h, "", "products", "list", "--sort", "color")
	assert.ErrorIs(t, err, catalog.ErrValidation)
}

func TestProductsCreateUpdateDelete(t *testing.T) {
	h := seeded(t)

	out, err := runCLI(t, h, "", "products", "create", "--name", "Reading Glasses", "--price", "35", "--json")
	require.NoError(t, err)
	var created catalog.Product
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Reading Glasses", created.Name)
	id := strconv.FormatInt(created.ID, 10)

	_, err = runCLI(t, h, "", "products", "create", "--name", " ")
	var verr *catalog.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, catalog.MsgNameRequired, verr.Field(catalog.FieldName))
	assert.Equal(t, catalog.MsgPriceInvalid, verr.Field(catalog.FieldPrice))

	out, err = runCLI(t, h, "", "products", "update", id, "--price", "29.99")
	require.NoError(t, err)
	assert.Contains(t, out, "#"+id+" Reading Glasses")
	assert.Contains(t, out, "Price: 29.99")

	_, err = runCLI(t, h, "", "products", "update", id, "--price", "29.99")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, catalog.MsgNoChanges, verr.Field(catalog.FieldForm))

	out, err = runCLI(t, h, "", "products", "delete", id)
	require.NoError(t, err)
	assert.Equal(t, "Deleted product "+id+"\n", out)

	_, err = runCLI(t, h, "", "products", "show", id)
	assert.True(t, catalog.IsNotFound(err))

	_, err = runCLI(t, h, "", "products", "show", "abc")
	assert.Error(t, err)
}

func TestProductsShowAndReviews(t *testing.T) {
	h := seeded(t)

	out, err := runCLI(t, h, "", "products", "show", productID(t, h, "Mechanical Keyboard"))
	require.NoError(t, err)
	assert.Contains(t, out, "Mechanical Keyboard")
	assert.Contains(t, out, "Best keyboard I've owned.")

	chair := productID(t, h, "Office Chair")
	out, err = runCLI(t, h, "", "reviews", "add", chair, "Comfy", "all", "day")
	require.NoError(t, err)
	assert.Contains(t, out, "- Comfy all day")

	out, err = runCLI(t, h, "", "reviews", "list", chair, "--json")
	require.NoError(t, err)
	var page catalog.Page[catalog.Review]
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Comfy all day", page.Items[0].Content)

	_, err = runCLI(t, h, "", "reviews", "add", "9999", "Ghost")
	assert.True(t, catalog.IsNotFound(err))
}

func TestBrowseSession(t *testing.T) {
	h := seeded(t)
	lamp := productID(t, h, "Vintage Desk Lamp")
	notebook := productID(t, h, "Notebook Set")
	script := strings.Join([]string{
		"next",
		"sort price",
		"search desk",
		"open " + lamp,
		"review Still shining.",
		"price 95",
		"back",
		"delete " + notebook,
		"bogus",
		"quit",
	}, "\n")

	out, err := runCLI(t, h, script, "browse")
	require.NoError(t, err)

	assert.Contains(t, out, "Page 1 of 2 (14 products)")
	assert.Contains(t, out, "Page 2 of 2 (14 products)")
	assert.Contains(t, out, "== Products (sort price desc) ==")
	assert.Contains(t, out, `search "desk"`)
	assert.Contains(t, out, "#"+lamp+" Vintage Desk Lamp")
	assert.Contains(t, out, "Review added.")
	assert.Contains(t, out, "- Still shining.")
	assert.Contains(t, out, "Price: 95.00")
	assert.Contains(t, out, "Product "+notebook+" deleted.")
	assert.Contains(t, out, `Error: unknown command "bogus", try help`)

	page := h.Store.ListProducts(catalog.ProductListParams{Limit: 100, Search: "lamp"})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "95", page.Items[0].Price.String())
	assert.Empty(t, h.Store.ListProducts(catalog.ProductListParams{Search: "notebook"}).Items)
}

func TestMissingStackFactory(t *testing.T) {
	c := New(Options{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	c.SetArgs([]string{"products", "list"})
	assert.Error(t, c.Execute(context.Background()))
}
