package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidgif/internal/cache"
	"vidgif/internal/frames"
	"vidgif/internal/gifenc"
	"vidgif/internal/handlers"
	"vidgif/internal/logging"
	"vidgif/internal/metrics"
	"vidgif/internal/middleware"
	"vidgif/internal/retriever"
	"vidgif/internal/startup"
	"vidgif/internal/workers"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize conversion cache
	cacheStart := time.Now()
	store, err := cache.New(context.Background(), config.CacheDir)
	if err != nil {
		startup.LogFatal("Failed to initialize conversion cache: %v", err)
	}
	defer store.Close()
	startup.LogCacheInit(time.Since(cacheStart))

	// Prune expired conversions periodically
	go func() {
		ticker := time.NewTicker(config.PruneInterval)
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := store.Prune(ctx, config.CacheMaxAge); err != nil {
				logging.Warn("cache prune failed: %v", err)
			}
			cancel()
		}
	}()

	// Initialize frame decoder (requires ffmpeg)
	startup.LogDecoderInit()
	decoder, err := frames.NewDecoder()
	if err != nil {
		startup.LogFatal("Failed to initialize frame decoder: %v", err)
	}

	// Initialize GIF encoder
	encodeWorkers := workers.ForCPU(0)
	startup.LogEncoderInit(encodeWorkers)
	encoder := gifenc.NewEncoder(encodeWorkers)

	// Initialize media retriever
	fetcher := retriever.New(config.FetchTimeout, config.MaxFetchBytes)

	// Initialize handlers
	h := handlers.New(fetcher, decoder, store, encoder, config)

	// Pre-populate labeled metrics so they show up before first use
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
	}

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply metrics middleware
	var handler http.Handler = router
	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Serve metrics on a separate port
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, store)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Conversion API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", h.Convert).Methods("POST")
	api.HandleFunc("/version", h.GetVersion).Methods("GET")

	return r
}

func handleShutdown(srv, metricsSrv *http.Server, store *cache.Store) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Closing conversion cache")
	if err := store.Close(); err != nil {
		logging.Warn("Cache close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Conversion cache closed")
	}

	startup.LogShutdownComplete()
}
