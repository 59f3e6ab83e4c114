package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/catalogquery"
	"github.com/odyssey-erp/catalogsync/internal/productlist"
)

func (c *CLI) newProductsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product", "p"},
		Short:   "List and manage products",
	}
	cmd.AddCommand(c.newProductsListCmd())
	cmd.AddCommand(c.newProductsShowCmd())
	cmd.AddCommand(c.newProductsCreateCmd())
	cmd.AddCommand(c.newProductsUpdateCmd())
	cmd.AddCommand(c.newProductsDeleteCmd())
	return cmd
}

func (c *CLI) newProductsListCmd() *cobra.Command {
	var params catalog.ProductListParams
	var sort, order string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params.Sort = catalog.SortField(sort)
			params.Order = catalog.SortOrder(order)
			if sort != "" && !params.Sort.Valid() {
				return catalog.NewValidationError("sort", "sort must be one of name, price, created_at")
			}
			if order != "" && !params.Order.Valid() {
				return catalog.NewValidationError("order", "order must be asc or desc")
			}
			e, err := c.stack.Cache.Fetch(cmd.Context(), catalogquery.ProductList(c.stack.API, params))
			if err != nil {
				return err
			}
			page, _ := catalogquery.ProductPage(e)
			if c.json {
				return writeJSON(c.out(), page)
			}
			renderProductPage(c.out(), page)
			return nil
		},
	}
	cmd.Flags().IntVar(&params.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&params.Limit, "limit", productlist.DefaultLimit, "Products per page")
	cmd.Flags().StringVar(&sort, "sort", "", "Sort field: name, price or created_at")
	cmd.Flags().StringVar(&order, "order", "", "Sort order: asc or desc")
	cmd.Flags().StringVarP(&params.Search, "search", "s", "", "Only products whose name contains this text")
	return cmd
}

func (c *CLI) newProductsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one product and its latest reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := c.stack.Cache.Fetch(ctx, catalogquery.Product(c.stack.API, id))
			if err != nil {
				return err
			}
			p, _ := catalogquery.ProductData(e)
			re, err := c.stack.Cache.Fetch(ctx, catalogquery.ReviewList(c.stack.API, reviewParams(id, 1)))
			if err != nil {
				return err
			}
			reviews, _ := catalogquery.ReviewPage(re)
			if c.json {
				return writeJSON(c.out(), map[string]any{"product": p, "reviews": reviews})
			}
			renderProduct(c.out(), p)
			renderReviewPage(c.out(), reviews)
			return nil
		},
	}
}

func (c *CLI) newProductsCreateCmd() *cobra.Command {
	var form catalog.ProductForm
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := catalog.ParseCreateForm(form)
			if err != nil {
				return err
			}
			p, err := c.stack.Mutations.CreateProduct(cmd.Context(), in)
			if err != nil {
				return err
			}
			if c.json {
				return writeJSON(c.out(), p)
			}
			renderProduct(c.out(), p)
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Name, "name", "", "Product name (required)")
	cmd.Flags().StringVar(&form.Description, "description", "", "Product description")
	cmd.Flags().StringVar(&form.Price, "price", "", "Price, a positive decimal (required)")
	return cmd
}

func (c *CLI) newProductsUpdateCmd() *cobra.Command {
	var form catalog.ProductForm
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change the given fields of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := c.stack.Cache.Fetch(ctx, catalogquery.Product(c.stack.API, id))
			if err != nil {
				return err
			}
			current, _ := catalogquery.ProductData(e)
			in, err := catalog.BuildUpdate(&current, form)
			if err != nil {
				return err
			}
			p, err := c.stack.Mutations.UpdateProduct(ctx, id, in)
			if err != nil {
				return err
			}
			if c.json {
				return writeJSON(c.out(), p)
			}
			renderProduct(c.out(), p)
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Name, "name", "", "New name")
	cmd.Flags().StringVar(&form.Description, "description", "", "New description")
	cmd.Flags().StringVar(&form.Price, "price", "", "New price")
	return cmd
}

func (c *CLI) newProductsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a product and its reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.stack.Mutations.DeleteProduct(cmd.Context(), id); err != nil {
				return err
			}
			if c.json {
				return writeJSON(c.out(), map[string]any{"deleted": id})
			}
			_, err = fmt.Fprintf(c.out(), "Deleted product %d\n", id)
			return err
		},
	}
}
