package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/product-studio/internal/database"
	"github.com/benvon/product-studio/internal/models"
	"github.com/benvon/product-studio/internal/ratelimit"
	"github.com/spf13/cobra"
)

// NewRatelimitCmd creates the ratelimit configuration command with list and set subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage the generation rate limit",
		Long:  "List or update the per-client generation limit. Running servers pick up changes on their next reload.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current rate limit configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			c, err := database.NewRatelimitConfigRepository(db).Get(ctx)
			if err != nil {
				return fmt.Errorf("get ratelimit config: %w", err)
			}
			if c == nil {
				d := ratelimit.DefaultPolicy()
				fmt.Printf("No rate limit configuration in database (servers use RATE_LIMIT, default %d per %s).\n", d.Limit, d.Window)
				return nil
			}
			printRatelimit(c)
			return nil
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	var limit int
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set rate limit configuration",
		Long:  "Update the generation limit, e.g. --limit 20 --window 1m. Stored in database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ratelimit.Policy{Limit: limit, Window: window}
			if err := p.Validate(); err != nil {
				return err
			}
			ctx := context.Background()
			_, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			c := &models.RatelimitConfig{Limit: p.Limit, WindowMs: p.Window.Milliseconds()}
			if err := database.NewRatelimitConfigRepository(db).Set(ctx, c); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Println("Rate limit configuration updated.")
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Requests allowed per window (required)")
	cmd.Flags().DurationVar(&window, "window", time.Minute, "Window length")
	_ = cmd.MarkFlagRequired("limit")
	return cmd
}

func printRatelimit(c *models.RatelimitConfig) {
	fmt.Println("Rate limit configuration:")
	fmt.Printf("  Limit: %d\n", c.Limit)
	fmt.Printf("  Window: %s\n", c.Window())
	fmt.Printf("  Updated: %s\n", c.UpdatedAt.Format(time.RFC3339))
}
