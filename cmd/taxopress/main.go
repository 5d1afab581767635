// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the taxopress server. It loads
// configuration, connects to PostgreSQL and Valkey, wires the category
// tree maintainer to the cache coordinator, and runs the HTTP server and
// the background flush worker with graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxopress/internal/cache"
	"taxopress/internal/config"
	"taxopress/internal/database"
	"taxopress/internal/handlers"
	"taxopress/internal/jobs"
	"taxopress/internal/middleware"
	"taxopress/internal/router"
	"taxopress/internal/session"
	"taxopress/internal/store"
	"taxopress/internal/tree"
)

func main() {
	// Structured logger — outputs JSON in production, text in development.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"max_tree_depth", cfg.MaxTreeDepth,
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey (cache + sessions; the job queue uses its own DB).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	// Sessions live in Valkey. In non-development environments session
	// cookies are Secure (HTTPS-only).
	secureCookies := !cfg.IsDev()
	sessionStore := session.NewStore(valkeyClient, secureCookies)

	// Data stores.
	categoryStore := store.NewCategoryStore(db)
	userStore := store.NewUserStore(db)
	cacheLogStore := store.NewCacheLogStore(db)

	// Background job plumbing: the client enqueues deferred flushes, the
	// Valkey lock debounces them into one job per window.
	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.ValkeyAddr(),
		RedisPassword: cfg.ValkeyPassword,
		RedisDB:       cfg.ValkeyJobDB,
	})
	defer jobClient.Close()

	scheduler := jobs.NewScheduler(
		jobs.NewValkeyLocker(valkeyClient),
		jobClient,
		cfg.DebounceLockTTL,
		cfg.FlushDelay,
	)

	// The tree cache coordinates shard-targeted invalidation, degrading to
	// the debounced full flush when targeting is uncertain.
	treeCache := cache.NewTreeCache(
		cache.NewValkeyBackend(valkeyClient),
		categoryStore,
		scheduler,
		cacheLogStore,
		cfg.CacheTTL,
	)

	// The maintainer enforces the tree invariants around every mutation.
	maintainer := tree.NewMaintainer(categoryStore, treeCache, cfg.MaxTreeDepth)

	// Handler groups.
	authHandlers := handlers.NewAuth(sessionStore, userStore)
	categoryHandlers := handlers.NewCategories(categoryStore, maintainer, treeCache)
	userHandlers := handlers.NewUsers(userStore)
	cacheHandlers := handlers.NewCacheCtl(treeCache, cacheLogStore)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer loginLimiter.Stop()

	r := router.New(sessionStore, authHandlers, categoryHandlers, userHandlers, cacheHandlers, loginLimiter)

	// Background worker for the debounced flush jobs.
	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.ValkeyAddr(),
		RedisPassword: cfg.ValkeyPassword,
		RedisDB:       cfg.ValkeyJobDB,
		Concurrency:   cfg.WorkerConcurrency,
	}, treeCache, cacheLogStore)
	if err := worker.Start(); err != nil {
		slog.Error("failed to start job worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	worker.Shutdown()

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
