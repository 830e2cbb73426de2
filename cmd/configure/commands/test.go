package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benvon/product-studio/internal/config"
	"github.com/benvon/product-studio/internal/database"
	"github.com/benvon/product-studio/internal/generation"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test server configuration",
		Long:  "Check the configured stores are reachable and server-side API keys are well formed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			failed := false
			check := func(name string, err error) {
				if err != nil {
					failed = true
					fmt.Printf("✗ %s: %v\n", name, err)
					return
				}
				fmt.Printf("✓ %s\n", name)
			}

			if cfg.DatabaseURL != "" {
				db, err := database.New(ctx, cfg.DatabaseURL)
				if err == nil {
					defer func() {
						if err := db.Close(); err != nil {
							fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
						}
					}()
				}
				check("Postgres reachable", err)
			} else {
				fmt.Println("- Postgres not configured")
			}

			if cfg.UsesRedis() {
				check("Redis reachable", pingRedis(ctx, cfg.RedisURL))
			} else {
				fmt.Println("- Redis not used (RATE_LIMIT_STORE=memory)")
			}

			checkKey := func(name string, p generation.Provider, key string) {
				if key == "" {
					fmt.Printf("- %s not set; clients must send their own key\n", name)
					return
				}
				check(name+" format", generation.Credentials{Provider: p, APIKey: key}.Validate())
			}
			checkKey("GEMINI_API_KEY", generation.ProviderGemini, cfg.GeminiAPIKey)
			checkKey("OPENAI_API_KEY", generation.ProviderOpenAI, cfg.OpenAIKey)

			if failed {
				return fmt.Errorf("configuration test failed")
			}
			fmt.Println("\n✓ Configuration test passed")
			return nil
		},
	}

	return cmd
}

func pingRedis(ctx context.Context, url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()
	return client.Ping(ctx).Err()
}
