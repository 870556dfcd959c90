package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/market-sim/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/market-sim/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/market-sim/pkg/config"
	"github.com/shubham-shewale/market-sim/pkg/market"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	repo := repository.NewRedisStore(rdb)

	// Dependency Injection: Hub depends on the Repository Interface
	catalog := hub.NewCatalog(market.DefaultInstruments(), cfg.Gateway.ValidTickers)
	wsHub := hub.NewHub(repo, catalog, logger.Named("hub"))
	logger.Info("Serving instruments", zap.Strings("symbols", catalog.Symbols()))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Upgrade failed", zap.Error(err))
			return
		}

		client := gateway.NewClient(conn, wsHub, logger)
		client.Start()
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP Error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down server", zap.Error(err))
	}

	// Websocket conns are hijacked, so close them through the hub
	wsHub.Shutdown()
	if err := repo.Close(); err != nil {
		logger.Error("Error closing Redis", zap.Error(err))
	}
	logger.Info("Shutdown Complete")
}
