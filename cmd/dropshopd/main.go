package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"dropshop/config"
	"dropshop/gateway"
	"dropshop/native/pricing"
	"dropshop/observability/logging"
	"dropshop/observability/otel"
	"dropshop/storage"
)

const otelEndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

func main() {
	configFile := flag.String("config", "./dropshop.toml", "Path to the configuration file")
	networkFlag := flag.String("network", "", "Price feed network to use (defaults to the first configured entry)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("dropshopd", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if endpoint := strings.TrimSpace(os.Getenv(otelEndpointEnv)); endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "dropshopd",
			Environment: cfg.Env,
			Endpoint:    endpoint,
			Insecure:    cfg.Env != "production",
		})
		if err != nil {
			logger.Error("telemetry init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	adapter, err := buildOracle(cfg, *networkFlag, logger)
	if err != nil {
		logger.Error("oracle init failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", slog.Any("error", err))
		os.Exit(1)
	}
	store, err := storage.NewStore(filepath.Join(cfg.DataDir, "dropshop.db"), nil)
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	params, err := cfg.PlatformParams()
	if err != nil {
		logger.Error("platform params", slog.Any("error", err))
		os.Exit(1)
	}
	admin, err := cfg.PlatformAdmin()
	if err != nil {
		logger.Error("platform admin", slog.Any("error", err))
		os.Exit(1)
	}

	server, err := gateway.NewServer(gateway.Config{
		Params:             params,
		Oracle:             adapter,
		Admin:              admin,
		Store:              store,
		Logger:             logger,
		RateLimitPerSecond: float64(cfg.RateLimitPerSecond),
		LogRequests:        true,
	})
	if err != nil {
		logger.Error("server init failed", slog.Any("error", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", slog.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
	}
}

func buildOracle(cfg *config.Config, networkName string, logger *slog.Logger) (*pricing.Adapter, error) {
	if networkName == "" && len(cfg.Networks) > 0 {
		networkName = cfg.Networks[0].Name
	}
	heartbeat := time.Duration(cfg.NetworkHeartbeat(networkName)) * time.Second

	network, ok := cfg.FindNetwork(networkName)
	if !ok || network.ChainlinkFeed == "manual" {
		logger.Warn("using manual price feed", slog.String("network", networkName))
		feed := pricing.NewManualFeed()
		return pricing.NewAdapter(feed, heartbeat), nil
	}

	feed, err := pricing.DialChainlinkFeed(network.RPCURL, network.ChainlinkFeed, 10*time.Second)
	if err != nil {
		return nil, err
	}
	logger.Info("price feed connected",
		slog.String("network", networkName),
		slog.String("feed", network.ChainlinkFeed),
		slog.Duration("heartbeat", heartbeat),
	)
	return pricing.NewAdapter(feed, heartbeat), nil
}
