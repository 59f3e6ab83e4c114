// Package cli implements the catalog command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/catalogsync/internal/app"
)

// StackFactory builds the data layer once flags are parsed. apiURL is the
// --api flag, empty when unset.
type StackFactory func(ctx context.Context, apiURL string) (*app.Stack, error)

// Options wires the CLI to its environment.
type Options struct {
	NewStack StackFactory
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// CLI is the catalog command tree.
type CLI struct {
	opts    Options
	rootCmd *cobra.Command
	stack   *app.Stack
	apiURL  string
	json    bool
}

// New creates the command tree.
func New(opts Options) *CLI {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	c := &CLI{opts: opts}

	rootCmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Browse and edit the product catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.close()
		},
	}
	rootCmd.SetIn(opts.Stdin)
	rootCmd.SetOut(opts.Stdout)
	rootCmd.SetErr(opts.Stderr)
	rootCmd.PersistentFlags().StringVar(&c.apiURL, "api", "", "Catalog API base URL (overrides CATALOG_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&c.json, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(c.newProductsCmd())
	rootCmd.AddCommand(c.newReviewsCmd())
	rootCmd.AddCommand(c.newBrowseCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the command tree with ctx.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	err := c.rootCmd.Execute()
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	return err
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

func (c *CLI) open(ctx context.Context) error {
	if c.stack != nil {
		return nil
	}
	if c.opts.NewStack == nil {
		return errors.New("catalog: no data layer configured")
	}
	s, err := c.opts.NewStack(ctx, c.apiURL)
	if err != nil {
		return err
	}
	c.stack = s
	return nil
}

func (c *CLI) close() error {
	if c.stack == nil {
		return nil
	}
	err := c.stack.Close()
	c.stack = nil
	return err
}

func (c *CLI) out() io.Writer {
	return c.opts.Stdout
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// EnvStack builds the data layer from environment configuration, logging
// to stderr.
func EnvStack(ctx context.Context, apiURL string) (*app.Stack, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return app.NewStack(ctx, app.StackParams{
		Config:    cfg,
		Logger:    app.NewLoggerTo(cfg, os.Stderr),
		UserAgent: "catalog-cli",
	})
}
