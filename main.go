package main

import (
	"context"
	"docgate/config"
	"docgate/handlers"
	"docgate/identity"
	"docgate/telemetry"
	"docgate/utils"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		log.Fatal("SUPABASE_URL and SUPABASE_ANON_KEY must be set")
	}

	shutdownTelemetry := telemetry.Setup("docgate", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	// Sessions and auth events
	var store identity.Store
	if strings.HasPrefix(cfg.RedisURL, "memory://") {
		log.Println("using in-memory session store; sessions will not survive a restart")
		store = identity.NewMemoryStore()
	} else {
		redisPool := utils.OpenRedisPool(cfg.RedisURL)
		defer redisPool.Close()
		store = identity.NewRedisStore(redisPool)
	}

	// Issuance audit trail is optional
	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err := utils.OpenDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := utils.EnsureIssuanceSchema(context.Background(), pool); err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}
		dbPool = pool
	}

	if _, err := os.Stat(cfg.SiteDir); err != nil {
		log.Printf("site directory %s is not readable: %v", cfg.SiteDir, err)
	}

	h, err := handlers.NewHandler(handlers.Deps{
		Client:      identity.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, nil),
		Store:       store,
		DB:          dbPool,
		Site:        http.FileServer(http.Dir(cfg.SiteDir)),
		SiteURL:     cfg.SiteURL,
		Secure:      cfg.Production(),
		LandingWait: cfg.LandingWait,
	})
	if err != nil {
		log.Fatal(err)
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(h.Routes(), "docgate"),
		ReadTimeout: 10 * time.Second,
		// the landing page stays open until sign-in completes
		WriteTimeout: cfg.LandingWait + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
