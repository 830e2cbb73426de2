package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/benvon/product-studio/internal/config"
	"github.com/benvon/product-studio/internal/database"
	"github.com/benvon/product-studio/internal/generation"
	"github.com/benvon/product-studio/internal/handlers"
	"github.com/benvon/product-studio/internal/logger"
	"github.com/benvon/product-studio/internal/middleware"
	"github.com/benvon/product-studio/internal/ratelimit"
	"github.com/benvon/product-studio/internal/services/ai"
	"github.com/benvon/product-studio/internal/services/imagegen"
	"github.com/benvon/product-studio/internal/services/oauth"
	"github.com/benvon/product-studio/internal/telemetry"
	"github.com/benvon/product-studio/internal/validation"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const (
	serviceName       = "product-studio"
	shortRouteTimeout = 10 * time.Second
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging of upstream calls")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("gemini_model", cfg.GeminiModel),
		zap.String("gemini_transport", cfg.GeminiTransport),
		zap.Int("rate_limit", cfg.RateLimit),
		zap.Duration("rate_limit_window", cfg.RateLimitWindow),
		zap.String("rate_limit_store", cfg.RateLimitStore),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Spilled multipart parts land in TEMP_DIR.
	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, 0o700); err != nil {
			zapLogger.Fatal("failed_to_create_temp_dir", zap.String("dir", cfg.TempDir), zap.Error(err))
		}
		if err := os.Setenv("TMPDIR", cfg.TempDir); err != nil {
			zapLogger.Warn("failed_to_set_tmpdir", zap.Error(err))
		}
	}

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingEnabled = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Postgres is optional; without it policy and CORS come from the environment.
	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.New(bgCtx, cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		if err := db.EnsureSchema(bgCtx); err != nil {
			zapLogger.Fatal("failed_to_ensure_schema", zap.Error(err))
		}
		zapLogger.Info("connected_to_database")
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("invalid_redis_url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(bgCtx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")
	}

	// Generation admission limiter
	policy := ratelimit.Policy{Limit: cfg.RateLimit, Window: cfg.RateLimitWindow}
	var store ratelimit.Store
	if redisClient != nil {
		store = ratelimit.NewRedisStore(redisClient, "")
	} else {
		memStore := ratelimit.NewMemoryStore()
		sweeper := ratelimit.NewSweeper(memStore, cfg.RateLimitSweepInterval, cfg.RateLimitWindow, zapLogger)
		go func() {
			if err := sweeper.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("rate_limit_sweeper_stopped_with_error", zap.Error(err))
			}
		}()
		store = memStore
	}
	limiter := ratelimit.New(store, policy, ratelimit.WithLogger(zapLogger))

	var corsSource middleware.CorsConfigSource
	if db != nil {
		corsSource = database.NewCorsConfigRepository(db)
		reloader := ratelimit.NewPolicyReloader(limiter, database.NewRatelimitConfigRepository(db), policy, cfg.RateLimitReload, zapLogger)
		go func() {
			if err := reloader.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("ratelimit_policy_reloader_stopped_with_error", zap.Error(err))
			}
		}()
	}

	// Upstreams
	upstreamClient := &http.Client{Timeout: cfg.UpstreamTimeout + 5*time.Second}
	gen, err := imagegen.New(imagegen.Options{
		Transport:         cfg.GeminiTransport,
		BaseURL:           cfg.GeminiBaseURL,
		Model:             cfg.GeminiModel,
		HTTPClient:        upstreamClient,
		RequestsPerSecond: cfg.UpstreamRPS,
		Debug:             debugMode,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_image_generator", zap.Error(err))
	}
	orchestrator := generation.NewOrchestrator(gen,
		generation.WithTaskTimeout(cfg.UpstreamTimeout),
		generation.WithLogger(zapLogger),
	)

	promptProvider, err := ai.NewProviderRegistry(zapLogger).GetProvider(cfg.AIProvider, map[string]string{
		"model":    cfg.AIModel,
		"base_url": cfg.AIBaseURL,
		"debug":    strconv.FormatBool(debugMode),
	})
	if err != nil {
		zapLogger.Fatal("failed_to_create_ai_provider", zap.Error(err))
	}

	oauthClient := oauth.NewClient(oauth.Config{
		ClientID:     cfg.OpenAIClientID,
		ClientSecret: cfg.OpenAIClientSecret,
		RedirectURL:  cfg.OpenAIRedirectURI,
		AuthURL:      cfg.OpenAIAuthURL,
		TokenURL:     cfg.OpenAITokenURL,
	})
	cookies := oauth.Cookies{Secure: cfg.CookieSecure}
	if !oauthClient.Configured() {
		zapLogger.Info("oauth_not_configured")
	}

	// Handlers
	generateHandler := handlers.NewGenerateHandler(orchestrator, limiter, zapLogger,
		handlers.WithServerAPIKey(cfg.GeminiAPIKey),
		handlers.WithUploadMemory(cfg.UploadMemoryBytes),
	)
	promptHandler := handlers.NewPromptHandler(promptProvider, limiter, cfg.OpenAIKey, oauthClient, cookies, zapLogger)
	oauthHandler := handlers.NewOAuthHandler(oauthClient, cookies, cfg.FrontendURL, zapLogger)
	healthChecker := handlers.NewHealthChecker(
		handlers.WithDatabase(db),
		handlers.WithRedis(redisClient),
	)

	burstStore, err := middleware.NewBurstStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_burst_store", zap.Error(err))
	}
	burstGuard, err := middleware.BurstGuard(burstStore, cfg.BurstRate, zapLogger)
	if err != nil {
		zapLogger.Fatal("invalid_burst_rate", zap.String("rate", cfg.BurstRate), zap.Error(err))
	}

	r := mux.NewRouter()

	// Middleware registered first wraps outermost.
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.RequestID)
	corsReloader := middleware.NewCORSReloader(corsSource, cfg.FrontendURL, zapLogger, cfg.RateLimitReload)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(cfg.MaxUploadBytes, zapLogger))
	r.Use(middleware.ContentType(zapLogger))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Generation routes are bounded per upstream task instead.
	short := middleware.Timeout(shortRouteTimeout)

	r.Handle("/healthz", short(http.HandlerFunc(healthChecker.HealthCheck))).Methods(http.MethodGet)
	r.Handle("/health", short(http.HandlerFunc(handlers.Health))).Methods(http.MethodGet)
	r.Handle("/version", short(http.HandlerFunc(handlers.VersionInfo))).Methods(http.MethodGet)

	openAPIHandler := handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml"), cfg.BaseURL)
	openAPIHandler.RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(burstGuard)

	generateHandler.RegisterRoutes(apiRouter.PathPrefix("/generate").Subrouter())
	promptHandler.RegisterRoutes(apiRouter)

	authRouter := apiRouter.PathPrefix("/auth/openai").Subrouter()
	authRouter.Use(short)
	oauthHandler.RegisterRoutes(authRouter)

	// Preflight requests are answered by the CORS middleware before reaching here.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// A multi-angle batch runs its tasks sequentially within one request.
	writeTimeout := cfg.UpstreamTimeout*time.Duration(validation.MaxAngles) + 30*time.Second
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go corsReloader.Start(bgCtx)

	go func() {
		zapLogger.Info("server_starting",
			zap.String("port", cfg.ServerPort),
			zap.Duration("write_timeout", writeTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	// In-flight batches get one upstream timeout to finish.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
