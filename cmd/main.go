package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolchat/backend/internal/api/handler"
	"schoolchat/backend/internal/auth"
	"schoolchat/backend/internal/chathub"
	"schoolchat/backend/internal/config"
	"schoolchat/backend/internal/localization"
	"schoolchat/backend/internal/logger"
	"schoolchat/backend/internal/metrics"
	"schoolchat/backend/internal/notify"
	"schoolchat/backend/internal/storage"
	"schoolchat/backend/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	db, err := storage.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if cfg.RedisAddr == "" {
		log.Println("Redis not configured, room relay disabled.")
		return db, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting school chat backend...")

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	std := log.New(os.Stdout, "", log.LstdFlags)
	appLog := logger.New(std, cfg)
	if rl, ok := appLog.(*logger.RollbarLogger); ok {
		defer rl.Flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(c)
	}()

	// 1. Storage
	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	// 2. Collaborators
	texts, err := localization.NewLocalizer(cfg.LocalesDir)
	if err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}
	sender, closeSender, err := notify.New(cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to create notifier: %v", err)
	}
	defer closeSender()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	// 3. Gateway
	opts := chathub.Options{
		Store:    s,
		Verifier: verifier,
		Sender:   sender,
		Texts:    texts,
		Logger:   appLog,
		Metrics:  m,
	}
	if rdb != nil {
		opts.Bus = s
	}
	gw := chathub.NewGateway(opts)
	gw.StartRelay(ctx)

	// 4. HTTP
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	handler.NewHandler(gw, s, verifier, appLog).
		Register(r, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(r, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("listening", logger.Fields{"addr": cfg.HTTPAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	// Upgraded sockets are not tracked by the HTTP server.
	if err := gw.Shutdown(shutdownCtx); err != nil {
		appLog.Error("gateway shutdown failed", err)
	}
}
