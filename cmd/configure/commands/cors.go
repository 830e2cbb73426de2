package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/product-studio/internal/database"
	"github.com/benvon/product-studio/internal/models"
	"github.com/spf13/cobra"
)

// NewCorsCmd creates the cors configuration command with list and set subcommands.
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage CORS configuration",
		Long:  "List or update CORS allowed origins and options (stored in database).",
	}
	cmd.AddCommand(newCorsListCmd())
	cmd.AddCommand(newCorsSetCmd())
	return cmd
}

func newCorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current CORS configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			c, err := database.NewCorsConfigRepository(db).Get(ctx)
			if err != nil {
				return fmt.Errorf("get cors config: %w", err)
			}
			if c == nil {
				fmt.Printf("No CORS configuration in database (servers use FRONTEND_URL: %s).\n", cfg.FrontendURL)
				return nil
			}
			printCors(c)
			return nil
		},
	}
}

func newCorsSetCmd() *cobra.Command {
	var origins string
	var allowCreds bool
	var maxAge int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set CORS configuration",
		Long:  "Replace the allowed origins, e.g. --origins https://studio.example.com,http://localhost:5173. Use * to allow any origin without credentials.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &models.CorsConfig{
				AllowedOrigins:   origins,
				AllowCredentials: allowCreds,
				MaxAge:           maxAge,
			}
			if err := c.Validate(); err != nil {
				return fmt.Errorf("--origins: %w", err)
			}
			ctx := context.Background()
			_, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := database.NewCorsConfigRepository(db).Set(ctx, c); err != nil {
				return fmt.Errorf("set cors config: %w", err)
			}
			fmt.Println("CORS configuration updated.")
			return nil
		},
	}
	cmd.Flags().StringVar(&origins, "origins", "", "Comma-separated allowed origins (required)")
	cmd.Flags().BoolVar(&allowCreds, "allow-credentials", true, "Allow credentials")
	cmd.Flags().IntVar(&maxAge, "max-age", models.DefaultCorsMaxAge, "Access-Control-Max-Age (seconds)")
	return cmd
}

func printCors(c *models.CorsConfig) {
	fmt.Println("CORS configuration:")
	fmt.Printf("  Allowed origins: %s\n", strings.Join(c.Origins(), ", "))
	fmt.Printf("  Allow credentials: %v\n", c.AllowCredentials)
	fmt.Printf("  Max-Age: %d\n", c.MaxAge)
}
