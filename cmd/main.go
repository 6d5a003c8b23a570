package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"realtime-service/internal/alerts"
	"realtime-service/internal/api"
	"realtime-service/internal/auth"
	"realtime-service/internal/cache"
	"realtime-service/internal/config"
	"realtime-service/internal/db"
	"realtime-service/internal/kafka"
	"realtime-service/internal/logging"
	"realtime-service/internal/metrics"
	"realtime-service/internal/notification"
	"realtime-service/internal/outbox"
	"realtime-service/internal/ratelimit"
	"realtime-service/internal/registry"
	"realtime-service/internal/utils"
	"realtime-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	var database *db.DB
	err = utils.Retry(ctx, logger, 5, 3*time.Second, func() error {
		database, err = db.New(cfg.DB.DSN)
		if err != nil {
			return err
		}
		return database.Ping(ctx)
	})
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		log.Fatalf("Schema init failed: %v", err)
	}

	// Session cache is optional: the authenticator falls back to the
	// database when redis is unavailable.
	var sessionCache auth.SessionCache
	redisCache, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warnf("Redis unavailable, session cache disabled: %v", err)
	} else {
		sessionCache = redisCache
		defer redisCache.Close()
	}

	sink := metrics.NewPostgresSink(database, logger)
	reg := registry.New(cfg.WS.MaxConnsPerChannel, sink, logger)
	ob := outbox.New(database, logger)
	limiter := ratelimit.New(database, logger)
	authenticator := auth.New(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.SessionTTLMinutes)*time.Minute, database, sessionCache, logger)
	notifier := notification.New(reg, ob, cfg.WS.AdminChannel, logger)

	engine := alerts.NewEngine(
		database,
		notifier,
		alerts.BuiltinRules(),
		time.Duration(cfg.Alerts.IntervalSeconds)*time.Second,
		time.Duration(cfg.Alerts.TimeframeMinutes)*time.Minute,
		logger,
	)
	engine.Start(ctx)

	var wg sync.WaitGroup
	consumer := kafka.NewConsumer(kafka.Config{
		Broker:  cfg.Kafka.Broker,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, database, logger)
	consumer.Start(ctx, &wg)

	wsHandler := ws.NewHandler(
		authenticator,
		reg,
		limiter,
		notifier,
		database,
		cfg.RateLimit.ConnectLimit,
		time.Duration(cfg.RateLimit.PeriodSeconds)*time.Second,
		logger,
	)
	probes := map[string]api.Pinger{"database": database}
	if redisCache != nil {
		probes["redis"] = redisCache
	}
	handler := api.NewHandler(reg, notifier, ob, limiter, engine, authenticator, probes, logger)
	router := api.NewRouter(handler, wsHandler, logger, cfg)

	server := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("API server failed: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Infof("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	engine.Stop()
	cancel()
	consumer.Close()
	wg.Wait()
	logger.Infof("Shutdown complete")
}
