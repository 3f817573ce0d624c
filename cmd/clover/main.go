package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	candidaterepo "github.com/Ramsey-B/clover/internal/repositories/candidate"
	companyrepo "github.com/Ramsey-B/clover/internal/repositories/company"
	contactrepo "github.com/Ramsey-B/clover/internal/repositories/contact"
	publicationrepo "github.com/Ramsey-B/clover/internal/repositories/publication"
	scanjobrepo "github.com/Ramsey-B/clover/internal/repositories/scanjob"
	settingsrepo "github.com/Ramsey-B/clover/internal/repositories/settings"
	"github.com/Ramsey-B/clover/pkg/autoimport"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/manualimport"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes/candidate"
	contactroute "github.com/Ramsey-B/clover/pkg/routes/contact"
	"github.com/Ramsey-B/clover/pkg/routes/cron"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/matchsettings"
	"github.com/Ramsey-B/clover/pkg/routes/network"
	"github.com/Ramsey-B/clover/pkg/routes/scanrun"
	"github.com/Ramsey-B/clover/pkg/scan"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/server"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	tp := tracing.Init(cfg.AppName)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Tracer shutdown failed")
		}
	}()

	pool, err := database.Connect(ctx, database.Config{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer pool.Close()

	driver, err := migratepostgres.WithInstance(pool.DB, &migratepostgres.Config{})
	if err != nil {
		logger.WithError(err).Error("Failed to create migration driver")
		os.Exit(1)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	db := database.NewDatabaseInstance(pool, logger)

	var redisClient *redis.Client
	var locker *redis.Locker
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient, cfg.AppName)
	}

	var emitter *events.Emitter
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	var graphClient *graph.Client
	var projector *graph.Projector
	var networkService *graph.NetworkService
	if cfg.GraphEnabled {
		graphClient, err = graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to graph database")
			os.Exit(1)
		}
		defer graphClient.Close(context.Background())
		projector = graph.NewProjector(graphClient, logger)
		networkService = graph.NewNetworkService(graphClient, logger)
	}

	var reconciler reconcile.Reconciler
	if cfg.ReconcilerURL != "" {
		reconciler = reconcile.NewHTTPReconciler(reconcile.Config{
			URL:     cfg.ReconcilerURL,
			Timeout: cfg.ReconcilerTimeout,
		}, logger)
	}

	candidates := candidaterepo.NewRepository(db, logger)
	scanJobs := scanjobrepo.NewRepository(db, logger)
	matchingSettings := settingsrepo.NewRepository(db, logger)
	contacts := contactrepo.NewRepository(db, logger)
	companies := companyrepo.NewRepository(db, logger)
	publications := publicationrepo.NewRepository(db, logger)

	scorer := scoring.NewScorer()
	merger := merging.NewFieldMerger(logger)

	scanner := scan.NewScanner(contacts, candidates, scanJobs, scorer, locker, emitter, scan.Config{
		MinClusterScore:    cfg.MinClusterScore,
		MaxContactsPerScan: cfg.MaxContactsPerScan,
		StaleAfter:         cfg.ScanStaleAfter,
		RetryCount:         cfg.CandidateRetryCount,
	}, logger)

	importer := autoimport.NewEngine(candidates, contacts, matchingSettings, merger, reconciler,
		autoimport.NewPolicy(cfg.DestinationPolicy), emitter, projector,
		autoimport.Config{BatchSize: cfg.ImportBatchSize}, logger)

	resolver := manualimport.NewResolver(candidates, contacts, companies, publications,
		merger, reconciler, scorer, emitter, projector, logger)

	checker := health.NewChecker(db, redisClient, graphClient, version)

	srv := server.New(cfg, logger, server.Handlers{
		Candidates: candidate.NewHandler(candidates, resolver, emitter, logger),
		Contacts:   contactroute.NewHandler(contacts),
		ScanRuns:   scanrun.NewHandler(scanJobs),
		Cron:       cron.NewHandler(scanner, importer, matchingSettings, logger),
		Settings:   matchsettings.NewHandler(matchingSettings),
		Network:    network.NewHandler(networkService, logger),
		Health:     checker,
	})

	go func() {
		checker.SetReady(true)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server stopped unexpectedly")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}
