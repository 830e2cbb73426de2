package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/product-studio/internal/database"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all stored runtime configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			rl, err := database.NewRatelimitConfigRepository(db).Get(ctx)
			if err != nil {
				return fmt.Errorf("get ratelimit config: %w", err)
			}
			cors, err := database.NewCorsConfigRepository(db).Get(ctx)
			if err != nil {
				return fmt.Errorf("get cors config: %w", err)
			}

			if rl == nil && cors == nil {
				fmt.Println("No runtime configuration stored; servers use environment defaults")
				return nil
			}
			if rl != nil {
				printRatelimit(rl)
			}
			if cors != nil {
				if rl != nil {
					fmt.Println()
				}
				printCors(cors)
			}
			return nil
		},
	}

	return cmd
}
