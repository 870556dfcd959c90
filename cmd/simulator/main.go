package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/api"
	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/publisher"
	"github.com/shubham-shewale/market-sim/pkg/config"
	"github.com/shubham-shewale/market-sim/pkg/market"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize Zap Logger
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	// 3. Seed the engine; bad seed data stops us here
	engineCfg := market.DefaultConfig()
	engineCfg.Interval = cfg.Simulator.Interval
	engineCfg.HistoryCap = cfg.Simulator.HistoryCap

	engine, err := market.New(engineCfg, logger.Named("engine"), market.NewRealRand(), market.RealClock{})
	if err != nil {
		logger.Fatal("Invalid market configuration", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Create Topic (one partition per instrument)
	creator := publisher.NewTopicCreator(logger, &publisher.RealKafkaDialer{Dialer: kafka.DefaultDialer}, publisher.RealSleeper{})
	if err := creator.Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, len(engineCfg.Instruments)); err != nil {
		logger.Warn("Topic not confirmed, relying on broker auto-creation", zap.Error(err))
	}

	// 5. Setup Kafka Writer
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{}, // symbol key -> stable partition
		BatchSize:    len(engineCfg.Instruments),
		BatchTimeout: 10 * time.Millisecond,
	}

	pub := publisher.NewPublisher(logger.Named("publisher"), writer, engine)
	pubDone := make(chan struct{})
	go func() {
		pub.Run(ctx)
		close(pubDone)
	}()

	// 6. Start ticking
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}

	// 7. Read API
	srv := &http.Server{
		Addr:    cfg.Simulator.APIPort,
		Handler: api.NewRouter(engine, logger.Named("api"), cfg.Simulator.RequestTimeout),
	}
	go func() {
		logger.Info("API Started", zap.String("port", cfg.Simulator.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP Error", zap.Error(err))
			cancel()
		}
	}()

	// 8. Wait for Shutdown Signal
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	engine.Stop()
	<-pubDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API", zap.Error(err))
	}

	// Flush Kafka Buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
