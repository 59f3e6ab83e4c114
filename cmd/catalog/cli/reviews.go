package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/catalogquery"
	"github.com/odyssey-erp/catalogsync/internal/reviews"
)

func reviewParams(productID int64, page int) catalog.ReviewListParams {
	return catalog.ReviewListParams{
		ProductID: productID,
		Page:      page,
		Limit:     reviews.DefaultLimit,
		Sort:      catalog.SortCreatedAt,
		Order:     catalog.SortDesc,
	}
}

func (c *CLI) newReviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reviews",
		Aliases: []string{"review", "r"},
		Short:   "List and add product reviews",
	}
	cmd.AddCommand(c.newReviewsListCmd())
	cmd.AddCommand(c.newReviewsAddCmd())
	return cmd
}

func (c *CLI) newReviewsListCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "list PRODUCT_ID",
		Short: "List a page of reviews, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := c.stack.Cache.Fetch(cmd.Context(), catalogquery.ReviewList(c.stack.API, reviewParams(id, page)))
			if err != nil {
				return err
			}
			p, _ := catalogquery.ReviewPage(e)
			if c.json {
				return writeJSON(c.out(), p)
			}
			renderReviewPage(c.out(), p)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	return cmd
}

func (c *CLI) newReviewsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add PRODUCT_ID TEXT...",
		Short: "Add a review to a product",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			in := catalog.CreateReviewInput{Content: strings.TrimSpace(strings.Join(args[1:], " ")), ProductID: id}
			r, err := c.stack.Mutations.CreateReview(cmd.Context(), in)
			if err != nil {
				return err
			}
			if c.json {
				return writeJSON(c.out(), r)
			}
			renderReviews(c.out(), []catalog.Review{r})
			return nil
		},
	}
}
