package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/windingtree/orgid-migrator/internal/api/handler"
	"github.com/windingtree/orgid-migrator/internal/api/router"
	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/config"
	"github.com/windingtree/orgid-migrator/internal/content"
	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/orgid"
	"github.com/windingtree/orgid-migrator/internal/queue"
	"github.com/windingtree/orgid-migrator/internal/request"
	"github.com/windingtree/orgid-migrator/internal/status"
	"github.com/windingtree/orgid-migrator/internal/validate"
	"github.com/windingtree/orgid-migrator/internal/vc"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
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

	// Destination chain gateways; the API only reads so no signing key
	// is required here
	chains, err := initChains(&cfg.Chains, loadMigratorKey(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize chain gateways: %w", err)
	}

	// Wire the intake and status services
	source := chain.NewSnapshotSource(redisClient.GetRedis(), cfg.Chains.SourceContract)
	index := dedup.NewRedisIndex(redisClient.GetRedis())
	jobs := jobstore.NewPostgresStore(dbClient.GetDB(), appLogger.Logger)
	jobQueue := queue.New(jobs, rabbitClient, cfg.Retry.MaxAttempts, appLogger.Logger)
	validator := validate.NewEngine(source, chains, appLogger.Logger)
	projector := status.NewProjector(index, jobs, appLogger.Logger)
	contentStore := content.NewWeb3Store(
		cfg.Content.Endpoint,
		cfg.Content.Gateway,
		cfg.Content.Token,
		cfg.Content.Timeout,
		appLogger.Logger,
	)

	requests := request.NewService(request.Config{
		Validator:   validator,
		Verifier:    vc.NewEIP191Verifier(),
		Source:      source,
		SourceChain: cfg.Chains.SourceChainID,
		Index:       index,
		Queue:       jobQueue,
		Jobs:        jobs,
		Projector:   projector,
		Purger:      &queuePurger{rabbitClient},
		Logger:      appLogger.Logger,
	})
	dids := orgid.NewService(source, projector, contentStore, appLogger.Logger)

	// Initialize router
	handlerDeps := &handler.Dependencies{
		Logger:       appLogger.Logger,
		DBClient:     dbClient,
		RedisClient:  redisClient,
		RabbitClient: rabbitClient,
		Requests:     requests,
		DIDs:         dids,
		Content:      contentStore,
		Environment:  cfg.App.Environment,
		Version:      cfg.App.Version,
	}
	r := initRouter(cfg.App.Environment, handlerDeps, cfg.Server.CORSOrigins)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
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
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// queuePurger adapts the rabbitmq client to the reset purge hook.
type queuePurger struct {
	client *rabbitmq.Client
}

func (p *queuePurger) Purge(_ context.Context) error {
	_, err := p.client.Purge()
	return err
}

// loadMigratorKey reads the optional migrator signing key from the
// environment. The API never signs, so a missing key is fine.
func loadMigratorKey() *ecdsa.PrivateKey {
	hexKey := os.Getenv("MIGRATOR_PRIVATE_KEY")
	if hexKey == "" {
		return nil
	}
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		log.Println("Ignoring malformed MIGRATOR_PRIVATE_KEY")
		return nil
	}
	return key
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

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies, corsOrigins []string) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Setup router
	return router.SetupRouter(deps, corsOrigins)
}
