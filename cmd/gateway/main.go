// Command gateway runs the LFX API gateway: it authenticates callers,
// forwards resource operations to the query service with optimistic
// concurrency, bridges identity requests over NATS, and serves analytics
// from the Snowflake warehouse through a deduplicating executor.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/linuxfoundation/lfx-gateway/internal/config"
	"github.com/linuxfoundation/lfx-gateway/internal/httpapi"
	"github.com/linuxfoundation/lfx-gateway/internal/identity"
	"github.com/linuxfoundation/lfx-gateway/internal/logging"
	"github.com/linuxfoundation/lfx-gateway/internal/metrics"
	"github.com/linuxfoundation/lfx-gateway/internal/middleware"
	"github.com/linuxfoundation/lfx-gateway/internal/proxy"
	"github.com/linuxfoundation/lfx-gateway/internal/querylock"
	"github.com/linuxfoundation/lfx-gateway/internal/stats"
	"github.com/linuxfoundation/lfx-gateway/internal/warehouse"
	"github.com/linuxfoundation/lfx-gateway/internal/warehouse/resultcache"
)

func main() {
	logger := logging.New("lfx-gateway")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Microservices.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	queryClient := proxy.NewClient(proxy.Config{
		BaseURL:  cfg.Microservices.QueryServiceURL,
		Timeout:  cfg.Microservices.RequestTimeout,
		M2MToken: cfg.Auth.M2MToken,
	})

	// Warehouse access is optional: the pool is created lazily on the first
	// analytics request, so missing credentials only fail those endpoints.
	var cache warehouse.ResultCache
	if cfg.Cache.Enabled() {
		redisCache, err := resultcache.New(cfg.Cache.RedisURL, cfg.Cache.TTL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to configure result cache")
		}
		defer redisCache.Close()
		cache = redisCache
	}
	exec := warehouse.New(cfg.Warehouse, logger, querylock.NewManager(), cache)
	defer exec.Close()

	var identityClient *identity.Client
	if cfg.NATS.URL != "" {
		identityClient, err = identity.Connect(cfg.NATS.URL, cfg.NATS.RequestTimeout, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to identity service")
		}
	} else {
		logger.Warn("NATS_URL not set, identity endpoints disabled")
	}

	var catalog *config.QueryCatalog
	if path := os.Getenv("QUERY_CATALOG_FILE"); path != "" {
		catalog, err = config.LoadQueryCatalog(path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load query catalog")
		}
	}

	publicKey, err := middleware.LoadPublicKey(cfg.Auth.JWKSPublicKeyFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load auth public key")
	}
	auth := middleware.NewAuthMiddleware(publicKey, logger, []string{
		"/healthz",
		"/metrics",
		"/public/",
	})

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
	limiter.StartCleanup(10 * time.Minute)

	router := mux.NewRouter()
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(auth.Handler)
	router.Use(limiter.Handler)

	handler := httpapi.New(logger, queryClient, exec, identityClient, catalog)
	handler.Register(router)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	reporter, err := stats.NewReporter(exec, logger, os.Getenv("STATS_SCHEDULE"))
	if err != nil {
		logger.WithError(err).Fatal("Invalid stats schedule")
	}
	reporter.Start()
	defer reporter.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
