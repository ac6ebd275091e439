package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	gatewayapi "github.com/veridian/iam-gateway/gateway/api"
	"github.com/veridian/iam-gateway/gateway/proxy"
	"github.com/veridian/iam-gateway/shared/api"
	"github.com/veridian/iam-gateway/shared/config"
	"github.com/veridian/iam-gateway/shared/metrics"
	"github.com/veridian/iam-gateway/shared/registry"
	"github.com/veridian/iam-gateway/shared/routing"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// --- 1. Load Configuration ---
	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Infof("Configuration loaded for Gateway. Listening on: %s", cfg.ListenAddr)

	routeCfg, err := routing.LoadConfig(cfg.RouteConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load route configuration: %v", err)
	}
	mappings, err := routing.CompileMappings(routeCfg)
	if err != nil {
		logger.Fatalf("Failed to compile route mappings: %v", err)
	}
	logger.Infof("Compiled %d route mappings (config version %q)", len(mappings), routeCfg.Version)

	// Global settings from the route configuration override env defaults.
	proxyTimeout := cfg.ProxyTimeout
	if gs := routeCfg.GlobalSettings; gs != nil && gs.DefaultTimeout > 0 {
		proxyTimeout = time.Duration(gs.DefaultTimeout) * time.Second
	}
	enableHealthChecks := cfg.EnableHealthChecks
	if gs := routeCfg.GlobalSettings; gs != nil && gs.EnableHealthChecks != nil {
		enableHealthChecks = *gs.EnableHealthChecks
	}

	// --- 2. Initialize Metrics ---
	metrics.InitMetrics()

	// --- 3. Initialize Route Resolver and Service Registry ---
	resolver := routing.NewResolver(mappings, logger)
	reg := registry.New(resolver, cfg.HealthCheckInterval, cfg.HealthCheckTimeout, logger)
	if err := reg.SeedFromConfig(routeCfg); err != nil {
		logger.Fatalf("Failed to seed registry from route configuration: %v", err)
	}
	if err := reg.SeedLegacy(config.DefaultLegacyServices()); err != nil {
		logger.Fatalf("Failed to seed registry from legacy service list: %v", err)
	}
	logger.Infof("Service registry seeded with %d services", len(reg.GetAllServices()))

	// --- 4. Start Health Check Sweep ---
	if enableHealthChecks {
		reg.Start()
		defer reg.Shutdown()
	} else {
		logger.Info("Health checks disabled")
	}

	// --- 5. Initialize Reverse Proxy ---
	px := proxy.New(reg, resolver, proxyTimeout, logger)
	logger.Infof("Reverse proxy initialized (timeout %v, prefix %s)", proxyTimeout, cfg.ProxyPrefix)

	// --- 6. Setup HTTP Server and Register Routes ---
	baseServer := api.NewBaseServer(cfg.ListenAddr, logger)
	baseServer.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	handlers := gatewayapi.NewGatewayAPIHandlers(reg, px, logger)
	handlers.RegisterRoutes(baseServer.Router, cfg.ProxyPrefix)
	logger.Info("HTTP routes registered.")

	// --- 7. Start HTTP Server ---
	go func() {
		if err := baseServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server failed to start: %v", err)
		}
	}()

	// --- 8. Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop // Wait for interrupt signal

	logger.Info("Shutting down Gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := baseServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server graceful shutdown failed: %v", err)
	}
	logger.Info("Gateway gracefully shut down.")
}
