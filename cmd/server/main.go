package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternisai/cursor-bridge/internal/auth"
	"github.com/eternisai/cursor-bridge/internal/config"
	"github.com/eternisai/cursor-bridge/internal/logger"
	"github.com/eternisai/cursor-bridge/internal/proxy"
	"github.com/eternisai/cursor-bridge/internal/refresh"
	"github.com/eternisai/cursor-bridge/internal/request_tracking"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/eternisai/cursor-bridge/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
)

func main() {
	config.LoadConfig()

	log := logger.New(logger.FromConfig(config.AppConfig.LogLevel, config.AppConfig.LogFormat))

	gin.SetMode(config.AppConfig.GinMode)

	// Load the credential pool from disk
	store, err := token.Load(config.AppConfig.TokensFilePath)
	if err != nil {
		log.Error("failed to load credential pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("credential pool loaded", slog.Int("credentials", store.Len()))

	// Upstream HTTP/2 client
	client, err := upstream.NewClient(config.AppConfig)
	if err != nil {
		log.Error("failed to build upstream client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := client.Proxies().Load(config.AppConfig.ProxiesFilePath); err != nil {
		log.Error("failed to load proxy pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Services
	refreshService := refresh.NewService(store, client, log)
	registry := prometheus.NewRegistry()
	metrics := request_tracking.NewMetrics(registry)
	trackingService := request_tracking.NewService(request_tracking.Config{
		Workers:    config.AppConfig.RequestTrackingWorkerPoolSize,
		BufferSize: config.AppConfig.RequestTrackingBufferSize,
		Capacity:   config.AppConfig.RequestTrackingCapacity,
	}, metrics, log)

	server := proxy.NewServer(store, client, refreshService, trackingService, log)

	authMiddleware := auth.NewMiddleware(auth.Keys{
		AuthKey:  config.AppConfig.AuthKey,
		ShareKey: config.AppConfig.ShareKey,
	})

	// Background jobs: periodic credential renewal and pool persistence
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(config.AppConfig.RefreshSweepCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		refreshService.Sweep(ctx)
		if err := store.Save(config.AppConfig.TokensFilePath); err != nil {
			log.Error("pool persistence failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		log.Error("failed to schedule refresh sweep", slog.String("error", err.Error()))
		os.Exit(1)
	}
	scheduler.Start()

	router := setupRouter(server, authMiddleware)

	// Metrics on a separate mux so /metrics stays off the public surface
	metricsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{config.AppConfig.CORSAllowedOrigins},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.GET("/metrics", gin.WrapH(metricsHandler))

	srv := &http.Server{
		Addr:    ":" + config.AppConfig.Port,
		Handler: router,
	}

	go func() {
		log.Info("bridge listening", slog.String("port", config.AppConfig.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	scheduler.Stop()
	trackingService.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.AppConfig.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", slog.String("error", err.Error()))
	}

	if err := store.Save(config.AppConfig.TokensFilePath); err != nil {
		log.Error("final pool persistence failed", slog.String("error", err.Error()))
	}
	log.Info("server exited")
}

func setupRouter(server *proxy.Server, authMiddleware *auth.Middleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS headers for the public surface
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", config.AppConfig.CORSAllowedOrigins)
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, api-key, x-api-key, anthropic-version")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Request-id into the context for log correlation
	router.Use(func(c *gin.Context) {
		ctx := logger.WithRequestID(c.Request.Context(), logger.GenerateRequestID())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	// Public chat surface
	v1 := router.Group("/v1")
	v1.Use(authMiddleware.RequireAuth())
	{
		v1.POST("/chat/completions", server.ChatCompletions)
		v1.POST("/messages", server.Messages)
		v1.POST("/messages/count_tokens", server.CountTokens)
		v1.GET("/models", server.Models)
	}

	// Utility routes
	gen := router.Group("/gen")
	{
		gen.GET("/uuid", server.GenUUID)
		gen.GET("/hash", server.GenHash)
		gen.GET("/checksum", server.GenChecksum)
	}
	router.POST("/ntp/sync", server.NtpSync)

	// Admin routes
	admin := router.Group("/")
	admin.Use(authMiddleware.RequireAdmin())
	{
		admin.GET("/tokens", server.ListTokens)
		admin.POST("/tokens", server.AddToken)
		admin.DELETE("/tokens/:alias", server.DeleteToken)
		admin.POST("/tokens/:alias/rename", server.RenameToken)
		admin.POST("/tokens/rotate-keys", server.RotateClientKeys)
		admin.GET("/requests", server.RecentRequests)
		admin.GET("/proxies", server.ListProxies)
		admin.POST("/proxies", server.SetProxy)
		admin.DELETE("/proxies/:name", server.DeleteProxy)
	}

	return router
}
