package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/dispatch"
	"github.com/Ramsey-B/fern/internal/generation"
	"github.com/Ramsey-B/fern/internal/handlers"
	accountrepo "github.com/Ramsey-B/fern/internal/repositories/account"
	annexurerepo "github.com/Ramsey-B/fern/internal/repositories/annexurefeed"
	appfilerepo "github.com/Ramsey-B/fern/internal/repositories/appfile"
	consolidatedrepo "github.com/Ramsey-B/fern/internal/repositories/consolidateddocument"
	nomineerepo "github.com/Ramsey-B/fern/internal/repositories/nomineedocument"
	orderitemrepo "github.com/Ramsey-B/fern/internal/repositories/orderitem"
	"github.com/Ramsey-B/fern/internal/sequence"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/filestore"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tiffconv"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()

	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Fern exited with error")
		os.Exit(1)
	}
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.PrettyLogs {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(ctx, cfg.AppName, tracing.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Insecure: true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if inst, ok := db.(*database.DatabaseInstance); ok {
		migrations := database.NewMigrationService(logger, database.MigrationConfig{
			FolderPath:   cfg.DatabaseMigrationFolderPath,
			Version:      cfg.DatabaseMigrationVersion,
			Force:        cfg.DatabaseMigrationForce,
			AutoRollback: cfg.DatabaseMigrationAutoRollback,
		})
		if err := migrations.Run(inst.DB, cfg.DatabaseName); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	locker := redis.NewLocker(redisClient, "fern:")

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer gcsClient.Close()

	store := filestore.NewGCSStore(gcsClient, cfg.StorageBucket, cfg.StorageOperationTimeout, logger)
	converter := tiffconv.NewConverter(cfg.ConvertCommand, cfg.ConvertTimeout, logger)

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	defer producer.Close()

	accounts := accountrepo.NewRepository(db, logger)
	orderItems := orderitemrepo.NewRepository(db, logger)
	consolidated := consolidatedrepo.NewRepository(db, logger)
	nominees := nomineerepo.NewRepository(db, logger)
	annexure := annexurerepo.NewRepository(db, logger)
	appFiles := appfilerepo.NewRepository(db, logger)

	allocator := sequence.NewAllocator(annexure, nominees, locker, cfg.SequenceLockTTL, logger)

	engine := generation.NewEngine(
		accounts,
		orderItems,
		consolidated,
		nominees,
		annexure,
		appFiles,
		allocator,
		db,
		store,
		converter,
		producer,
		generation.Config{
			ScratchRoot:           cfg.ScratchRoot,
			IdentityContainer:     cfg.StorageIdentityDocFolder,
			ConsolidatedContainer: cfg.StorageConsolidatedFolder,
			NomineeContainer:      cfg.StorageNomineeFolder,
			NomineeWorkers:        cfg.NomineeWorkerCount,
		},
		logger,
	)

	if cfg.ReconcileEnabled {
		sweeper := generation.NewSweeper(nominees, locker, generation.SweeperConfig{
			Interval:    cfg.ReconcileInterval,
			ClaimMaxAge: cfg.ReconcileClaimMaxAge,
		}, logger)
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("failed to start reconcile sweeper: %w", err)
		}
		defer func() { _ = sweeper.Stop(context.Background()) }()
	}

	if cfg.KafkaConsumerEnabled {
		requestProducer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaRequestTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer requestProducer.Close()

		dispatcher := dispatch.NewDispatcher(engine, requestProducer, logger)
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaRequestTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, dispatcher.Handle)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start kafka consumer: %w", err)
		}
		defer func() { _ = consumer.Stop() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.HTTPErrorHandler = middleware.Error(logger)

	checker := health.NewChecker(db, redisClient, version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	docHandler := handlers.NewDocumentHandler(engine, logger)
	docHandler.Register(e.Group("/v1/documents"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Fern listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	checker.SetReady(true)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	return nil
}

// connectDatabase retries the initial connection so the service survives
// the database coming up after it in a compose stack.
func connectDatabase(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	dbCfg := database.Config{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}

	attempts := cfg.StartupMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay, next := time.Second, 2*time.Second
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := database.Connect(ctx, dbCfg, logger)
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.WithError(err).Warnf("Database connection attempt %d/%d failed", attempt, attempts)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay, next = next, delay+next
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, lastErr)
}
