package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/config"
	"github.com/windingtree/orgid-migrator/internal/content"
	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/queue"
	"github.com/windingtree/orgid-migrator/internal/validate"
	"github.com/windingtree/orgid-migrator/internal/vc"
	"github.com/windingtree/orgid-migrator/internal/worker"
	"github.com/windingtree/orgid-migrator/shared/logger"
	"github.com/windingtree/orgid-migrator/shared/postgresql"
	"github.com/windingtree/orgid-migrator/shared/rabbitmq"
	"github.com/windingtree/orgid-migrator/shared/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	policy, err := dedup.ParseCleanupPolicy(cfg.Dedup.CleanupPolicy)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// The worker signs registration transactions, so the key is required
	migratorKey, err := loadMigratorKey()
	if err != nil {
		return err
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Initialize Redis client
	redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	appLogger.Info("Redis connection established")

	// Destination chain gateways
	chains, err := initChains(&cfg.Chains, migratorKey, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize chain gateways: %w", err)
	}

	// Wire the processing pipeline
	source := chain.NewSnapshotSource(redisClient.GetRedis(), cfg.Chains.SourceContract)
	index := dedup.NewRedisIndex(redisClient.GetRedis())
	jobs := jobstore.NewPostgresStore(dbClient.GetDB(), appLogger.Logger)
	validator := validate.NewEngine(source, chains, appLogger.Logger)
	contentStore := content.NewWeb3Store(
		cfg.Content.Endpoint,
		cfg.Content.Gateway,
		cfg.Content.Token,
		cfg.Content.Timeout,
		appLogger.Logger,
	)

	processor := worker.NewProcessor(&worker.ProcessorConfig{
		Validator: validator,
		Verifier:  vc.NewEIP191Verifier(),
		Content:   contentStore,
		Chains:    chains,
		Jobs:      jobs,
		Index:     index,
		Policy:    policy,
		Backoff: worker.Backoff{
			Base: cfg.Retry.BackoffBase,
			Cap:  cfg.Retry.BackoffCap,
		},
		JobTimeout: cfg.Worker.JobTimeout,
		Logger:     appLogger.Logger,
	})

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		RabbitClient:  rabbitClient,
		Processor:     processor,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	// Requeuer sweeps delayed retries and stale claims back onto the broker
	requeuer := queue.NewRequeuer(
		jobs,
		rabbitClient,
		cfg.Requeue.Interval,
		cfg.Requeue.Batch,
		cfg.Requeue.StaleAfter,
		appLogger.Logger,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go requeuer.Run(ctx)

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
		if redisClient != nil {
			redisClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// loadMigratorKey reads the migrator signing key from the environment.
func loadMigratorKey() (*ecdsa.PrivateKey, error) {
	hexKey := os.Getenv("MIGRATOR_PRIVATE_KEY")
	if hexKey == "" {
		return nil, fmt.Errorf("MIGRATOR_PRIVATE_KEY is required")
	}
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid MIGRATOR_PRIVATE_KEY: %w", err)
	}
	return key, nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRedis initializes the Redis client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	redisConfig := &redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	return redis.NewClient(redisConfig, logger)
}

// initChains dials every allow-listed destination chain
func initChains(cfg *config.ChainsConfig, key *ecdsa.PrivateKey, logger *slog.Logger) (*chain.Registry, error) {
	gateways := make([]chain.Gateway, 0, len(cfg.Destinations))
	for _, dst := range cfg.Destinations {
		gw, err := chain.DialEVM(dst, key, 30*time.Second, logger)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	}
	return chain.NewRegistry(gateways...), nil
}
