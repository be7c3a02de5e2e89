package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"mediaLending/internal/accounts"
	"mediaLending/internal/auth"
	"mediaLending/internal/catalog"
	"mediaLending/internal/config"
	"mediaLending/internal/contact"
	"mediaLending/internal/db"
	"mediaLending/internal/events"
	grpcserver "mediaLending/internal/grpc"
	"mediaLending/internal/httpapi"
	"mediaLending/internal/lending"
	"mediaLending/internal/logger"
	"mediaLending/internal/metrics"
	"mediaLending/internal/ratelimit"
	"mediaLending/repository"
)

func main() {
	cfg, err := config.LoadWithDefaults()
	if err == nil && cfg.IsProduction() {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg := logger.New(cfg.Log.Level, cfg.Env)
	defer func() { _ = lg.Sync() }()
	lg.Info("configuration loaded", zap.Stringer("config", cfg))

	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		lg.Fatal("open db", zap.Error(err))
	}
	defer func() {
		if err := d.Close(); err != nil {
			lg.Error("close db", zap.Error(err))
		}
	}()
	store := repository.NewStore(d)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.WithComponent(lg, "events"))
		lg.Info("publishing lending events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			lg.Error("close event publisher", zap.Error(err))
		}
	}()

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RateLimit.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		defer func() { _ = rdb.Close() }()
		limiter = ratelimit.NewRedisLimiter(rdb, "login:", cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow, logger.WithComponent(lg, "ratelimit"))
	}

	lendingSvc := lending.NewService(store, lending.PolicyFromConfig(cfg.Lending),
		lending.WithLogger(logger.WithComponent(lg, "lending")),
		lending.WithMetrics(m),
		lending.WithPublisher(publisher),
	)
	accountsSvc := accounts.NewService(store, auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		accounts.WithLimiter(limiter),
		accounts.WithMetrics(m),
		accounts.WithLogger(logger.WithComponent(lg, "accounts")),
	)

	router := httpapi.NewRouter(httpapi.Services{
		Lending:  lendingSvc,
		Catalog:  catalog.NewService(store, logger.WithComponent(lg, "catalog")),
		Accounts: accountsSvc,
		Contact:  contact.NewService(store, logger.WithComponent(lg, "contact")),
		Users:    store.Users,
		Ping:     d.PingContext,
	}, httpapi.Options{
		JWTSecret: cfg.Auth.JWTSecret,
		Logger:    logger.WithComponent(lg, "http"),
		Metrics:   m,
		Gatherer:  reg,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("http server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	shutdownGRPC, err := grpcserver.Start(cfg.GRPC.Address, grpcserver.Deps{
		Lending:   lendingSvc,
		Users:     store.Users,
		JWTSecret: cfg.Auth.JWTSecret,
		Logger:    logger.WithComponent(lg, "grpc"),
	})
	if err != nil {
		lg.Fatal("start grpc", zap.Error(err))
	}
	lg.Info("grpc server listening", zap.String("address", cfg.GRPC.Address))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeperDone := make(chan struct{})
	go func() {
		lending.NewSweeper(lendingSvc, cfg.Lending.SweepInterval, logger.WithComponent(lg, "sweeper")).Run(ctx)
		close(sweeperDone)
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	if err := shutdownGRPC(shutdownCtx); err != nil {
		lg.Error("grpc shutdown", zap.Error(err))
	}
	select {
	case <-sweeperDone:
	case <-shutdownCtx.Done():
	}
	os.Exit(0)
}
