package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/productdetail"
	"github.com/odyssey-erp/catalogsync/internal/productlist"
	"github.com/odyssey-erp/catalogsync/internal/reviews"
)

const timeLayout = "2006-01-02 15:04"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderProductPage(w io.Writer, page catalog.Page[catalog.Product]) {
	renderProducts(w, page.Items)
	renderPagination(w, page.Pagination, "products")
}

func renderProducts(w io.Writer, items []catalog.Product) {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "No products found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tPRICE\tCREATED")
	for _, p := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), formatTime(p.CreatedAt))
	}
	_ = tw.Flush()
}

func renderPagination(w io.Writer, p catalog.Pagination, noun string) {
	if p.Pages == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "Page %d of %d (%d %s)\n", p.Page, p.Pages, p.Total, noun)
}

func renderProduct(w io.Writer, p catalog.Product) {
	_, _ = fmt.Fprintf(w, "#%d %s\n", p.ID, p.Name)
	_, _ = fmt.Fprintf(w, "Price: %s\n", p.Price.StringFixed(2))
	if p.Description != "" {
		_, _ = fmt.Fprintln(w, p.Description)
	}
	if !p.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Created: %s\n", formatTime(p.CreatedAt))
	}
}

func renderReviewPage(w io.Writer, page catalog.Page[catalog.Review]) {
	renderReviews(w, page.Items)
	renderPagination(w, page.Pagination, "reviews")
}

func renderReviews(w io.Writer, items []catalog.Review) {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "No reviews yet.")
		return
	}
	for _, r := range items {
		_, _ = fmt.Fprintf(w, "- %s (%s)\n", r.Content, formatTime(r.CreatedAt))
	}
}

// renderListView draws the list screen of the browse session.
func renderListView(w io.Writer, v productlist.View) {
	var b strings.Builder
	fmt.Fprintf(&b, "== Products (sort %s %s", v.State.Sort, v.State.Order)
	if v.State.Search != "" {
		fmt.Fprintf(&b, ", search %q", v.State.Search)
	}
	b.WriteString(") ==")
	if v.Refreshing {
		b.WriteString(" [updating]")
	}
	_, _ = fmt.Fprintln(w, b.String())
	switch {
	case v.Loading:
		_, _ = fmt.Fprintln(w, "Loading products...")
		return
	case v.Err != nil && len(v.Items) == 0:
		_, _ = fmt.Fprintf(w, "Error: %v\n", v.Err)
		return
	}
	renderProducts(w, v.Items)
	if v.HasPagination {
		renderPagination(w, v.Pagination, "products")
	}
	if v.Err != nil {
		_, _ = fmt.Fprintf(w, "Refresh failed: %v\n", v.Err)
	}
}

// renderDetailView draws the product screen of the browse session.
func renderDetailView(w io.Writer, v productdetail.View) {
	switch v.Status {
	case productdetail.StatusLoading:
		_, _ = fmt.Fprintln(w, "Loading product...")
	case productdetail.StatusNotFound:
		_, _ = fmt.Fprintln(w, "Product not found.")
	case productdetail.StatusError:
		_, _ = fmt.Fprintf(w, "Error: %v\n", v.Err)
	case productdetail.StatusReady:
		renderProduct(w, v.Product)
		if v.Refreshing {
			_, _ = fmt.Fprintln(w, "[updating]")
		}
	}
	if v.ActionError != nil {
		_, _ = fmt.Fprintf(w, "Action failed: %v\n", v.ActionError)
	}
}

// renderReviewsView draws the review section of the product screen.
func renderReviewsView(w io.Writer, v reviews.View) {
	if v.ProductID <= 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "-- Reviews --")
	switch {
	case v.Loading:
		_, _ = fmt.Fprintln(w, "Loading reviews...")
	case v.Err != nil && len(v.Items) == 0:
		_, _ = fmt.Fprintf(w, "Error: %v\n", v.Err)
	default:
		renderReviews(w, v.Items)
		if v.HasPagination {
			renderPagination(w, v.Pagination, "reviews")
		}
	}
	if v.Submitting {
		_, _ = fmt.Fprintln(w, "Posting review...")
	}
	if v.FormError != "" {
		_, _ = fmt.Fprintln(w, v.FormError)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
