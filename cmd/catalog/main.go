// Command catalog is the terminal client for the product catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/catalogsync/cmd/catalog/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is normal; the environment alone is enough.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cli.New(cli.Options{NewStack: cli.EnvStack})
	if err := c.Execute(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		return 1
	}
	return 0
}
