// trustchaind is the physical-verification trust chain service: a trust
// registry of verifiers and DSM devices, and an append-only submission
// ledger of signed, content-addressed data hashes, exposed over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/api"
	"github.com/physver/trustchain/internal/identity"
	"github.com/physver/trustchain/internal/ledger"
	"github.com/physver/trustchain/internal/registry"
	"github.com/physver/trustchain/internal/webhooks"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("trustchaind exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("trustchain")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.base_url", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("admin.secret", "")
	viper.SetDefault("admin.token_ttl_seconds", 3600)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	httpPort := viper.GetInt("server.port")
	baseURL := viper.GetString("server.base_url")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", httpPort)
	}

	// ── Storage backend ──────────────────────────────────────────────────────
	var (
		reg             registry.Registry
		store           ledger.Store
		registryFactory api.RegistryFactory
	)

	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		reg = registry.NewPostgres(db, logger)
		store = ledger.NewPostgres(db, logger)

		registryFactory = func(ctx context.Context, dsn string) (registry.Registry, error) {
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return nil, fmt.Errorf("connect to registry backend: %w", err)
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("ping registry backend: %w", err)
			}
			return registry.NewPostgres(pool, logger), nil
		}
	} else {
		logger.Warn("no database.url configured — using in-memory stores; state is lost on restart")
		reg = registry.NewMemory()
		store = ledger.NewMemory()
	}

	// ── Webhook subscribers ──────────────────────────────────────────────────
	var subscribers []webhooks.Subscriber
	if err := viper.UnmarshalKey("webhooks.subscribers", &subscribers); err != nil {
		return fmt.Errorf("parse webhook subscribers: %w", err)
	}
	var sink ledger.EventSink
	if len(subscribers) > 0 {
		dispatcher := webhooks.NewDispatcher(subscribers, logger)
		dispatcher.SetMetricsRecorder(api.RecordWebhookDelivery)
		sink = dispatcher
		logger.Info("webhook dispatcher configured", zap.Int("subscribers", len(subscribers)))
	}

	// ── Admin capability ─────────────────────────────────────────────────────
	var adminIssuer *identity.AdminIssuer
	if secret := viper.GetString("admin.secret"); secret != "" {
		ttl := time.Duration(viper.GetInt("admin.token_ttl_seconds")) * time.Second
		adminIssuer = identity.NewAdminIssuer([]byte(secret), baseURL, ttl)
	} else {
		logger.Warn("no admin.secret configured — admin surface is disabled")
	}

	// ── Wire up layers ───────────────────────────────────────────────────────
	svc := ledger.NewService(store, reg, sink, logger)
	submissionHandler := api.NewSubmissionHandler(svc, logger)
	adminHandler := api.NewAdminHandler(svc, adminIssuer, registryFactory, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(api.RateLimiter(rps, rps*2))
	}

	router.Use(api.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", api.MetricsHandler())

	v1 := router.Group("/api/v1")
	submissionHandler.Register(v1)
	adminHandler.Register(v1)

	// ── Serve ────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("trustchaind HTTP listening", zap.Int("port", httpPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down trustchaind...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("trustchaind stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
