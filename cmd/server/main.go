package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegisshield/chain-monitor/internal/agents"
	"github.com/aegisshield/chain-monitor/internal/clock"
	"github.com/aegisshield/chain-monitor/internal/config"
	"github.com/aegisshield/chain-monitor/internal/database"
	"github.com/aegisshield/chain-monitor/internal/handlers"
	"github.com/aegisshield/chain-monitor/internal/ingest"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/realtime"
	"github.com/aegisshield/chain-monitor/internal/reports"
	"github.com/aegisshield/chain-monitor/internal/risk"
	"github.com/aegisshield/chain-monitor/internal/simulator"
	"github.com/aegisshield/chain-monitor/internal/stats"
	"github.com/aegisshield/chain-monitor/internal/wallet"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting chain-monitor",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	repos := database.NewRepositories(db)

	if err := seedAdminUser(ctx, repos, cfg, logger); err != nil {
		return err
	}
	if err := agents.Bootstrap(ctx, repos.Agents, cfg.Agents.IntervalSeconds); err != nil {
		return fmt.Errorf("failed to bootstrap agents: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		DialTimeout:  time.Duration(cfg.Redis.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Redis.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Redis.WriteTimeout) * time.Second,
		PoolSize:     cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without cache and cross-instance events", zap.Error(err))
		rdb = nil
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	hub := realtime.NewHub(rdb, collector, logger)
	go hub.Run(ctx)
	if rdb != nil {
		go hub.SubscribeToRedis(ctx)
	}

	var feed agents.Feed
	var consumer *ingest.Consumer
	if cfg.Kafka.Enabled {
		buffer := ingest.NewBuffer(cfg.Kafka.BufferSize)
		consumer = ingest.NewConsumer(&cfg.Kafka, buffer, collector, logger)
		go consumer.Run(ctx)
		feed = buffer
	}

	statsService := stats.NewService(repos, rdb,
		time.Duration(cfg.Stats.CacheTTLSeconds)*time.Second,
		cfg.Stats.SampleSize, logger)

	clk := clock.New()
	generator := reports.NewGenerator(
		repos.Reports, statsService, hub,
		cfg.Reports.OutputDir,
		time.Duration(cfg.Reports.StepDelayMs)*time.Millisecond,
		clk, collector, logger)

	scorer := risk.NewScorer(rand.NewSource(time.Now().UnixNano()))
	aggregator := wallet.NewAggregator(repos.Wallets)

	handlerSet := agents.NewHandlerSet(agents.HandlerDeps{
		Transactions: repos.Transactions,
		Alerts:       repos.Alerts,
		Reports:      repos.Reports,
		Scorer:       scorer,
		Wallets:      aggregator,
		Generator:    generator,
		Feed:         feed,
		Broadcaster:  hub,
		Collector:    collector,
		Clock:        clk,
		Logger:       logger,
	})

	scheduler := agents.NewScheduler(repos.Agents, handlerSet, hub, clk, collector, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	broadcaster := stats.NewBroadcaster(statsService, hub, logger)
	if err := broadcaster.Start(time.Duration(cfg.Stats.IntervalSeconds) * time.Second); err != nil {
		return fmt.Errorf("failed to start stats broadcaster: %w", err)
	}

	if cfg.Simulator.Enabled {
		sim := simulator.New(&cfg.Simulator, repos.Transactions, hub, logger)
		go sim.Run(ctx)
	}

	apiServer := handlers.NewServer(cfg, db, repos, scheduler, hub, statsService, collector, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	broadcaster.Stop()
	scheduler.Stop()
	cancel()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Warn("failed to close kafka consumer", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// seedAdminUser creates the initial login if it does not exist.
func seedAdminUser(ctx context.Context, repos *database.Repositories, cfg *config.Config, logger *zap.Logger) error {
	existing, err := repos.Users.FindByUsername(ctx, cfg.Auth.AdminUsername)
	if err != nil {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	user := &models.User{
		Username:     cfg.Auth.AdminUsername,
		PasswordHash: string(hash),
		Role:         "admin",
	}
	if err := repos.Users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	logger.Info("seeded admin user", zap.String("username", user.Username))
	return nil
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
