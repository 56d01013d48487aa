package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-intake/internal/app"
	"order-intake/internal/config"
	"order-intake/internal/handlers"
	"order-intake/internal/logging"
	"order-intake/internal/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	log := logging.For("main")

	// Load configuration
	configPath := getEnv("CONFIG_PATH", "config/config.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}

	lc := appConfig.Logging
	if err := logging.Init(logging.Config{
		Level:      lc.Level,
		Format:     lc.Format,
		File:       lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	log.Infof("Loaded configuration from %s", configPath)

	a, err := app.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if err := a.Sweeper.Start(); err != nil {
		log.Warnf("Failed to start trash sweep: %v", err)
	}
	defer a.Sweeper.Stop()

	if appConfig.Scan.AutoStart {
		a.Scans.EnableAutoScan()
	}

	// Initialize rate limiter
	rl := appConfig.RateLimit
	scanLimiter := ratelimit.NewLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.Enabled)
	log.Infof("Manual scan rate limit: %d req/min, %d req/hour (enabled: %v)",
		rl.RequestsPerMinute, rl.RequestsPerHour, rl.Enabled)

	// Setup Gin router
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	deps := handlers.Deps{
		Scans:          a.Scans,
		Lifecycle:      a.Lifecycle,
		Orders:         a.Orders,
		Store:          a.Store,
		Breaker:        a.Breaker,
		ScanLimiter:    scanLimiter,
		AttachmentsDir: appConfig.Mailbox.AttachmentsDir,
	}
	if a.Search != nil {
		deps.Searcher = a.Search
	}
	handlers.Register(r, deps)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", appConfig.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("Server starting on port %d", appConfig.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}
	// lets the polling loop finish its current cycle
	if err := a.Scans.Shutdown(ctx); err != nil {
		log.Errorf("Scanner shutdown: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
