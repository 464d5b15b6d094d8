package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/chorus/config"
	"github.com/Ramsey-B/chorus/internal/database"
	"github.com/Ramsey-B/chorus/internal/middleware"
	albumrepo "github.com/Ramsey-B/chorus/internal/repositories/album"
	artistrepo "github.com/Ramsey-B/chorus/internal/repositories/artist"
	creditrepo "github.com/Ramsey-B/chorus/internal/repositories/credit"
	candidaterepo "github.com/Ramsey-B/chorus/internal/repositories/matchcandidate"
	decisionrepo "github.com/Ramsey-B/chorus/internal/repositories/mergedecision"
	trackrepo "github.com/Ramsey-B/chorus/internal/repositories/track"
	"github.com/Ramsey-B/chorus/internal/startup"
	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/internal/tracing/exporters"
	albumsvc "github.com/Ramsey-B/chorus/pkg/albums"
	creditsvc "github.com/Ramsey-B/chorus/pkg/credits"
	dedupsvc "github.com/Ramsey-B/chorus/pkg/dedup"
	"github.com/Ramsey-B/chorus/pkg/events"
	graphpkg "github.com/Ramsey-B/chorus/pkg/graph"
	"github.com/Ramsey-B/chorus/pkg/kafka"
	"github.com/Ramsey-B/chorus/pkg/merging"
	"github.com/Ramsey-B/chorus/pkg/processor"
	reportsvc "github.com/Ramsey-B/chorus/pkg/reports"
	albumroutes "github.com/Ramsey-B/chorus/pkg/routes/albums"
	creditroutes "github.com/Ramsey-B/chorus/pkg/routes/credits"
	deduproutes "github.com/Ramsey-B/chorus/pkg/routes/dedup"
	graphroutes "github.com/Ramsey-B/chorus/pkg/routes/graph"
	"github.com/Ramsey-B/chorus/pkg/routes/health"
	matchroutes "github.com/Ramsey-B/chorus/pkg/routes/matchcandidate"
	reportroutes "github.com/Ramsey-B/chorus/pkg/routes/reports"
)

const version = "1.0.0"

// application holds the wired service graph shared by the startup
// dependencies. Postgres builds the repositories and domain services, kafka
// and graph attach their optional pieces, and http serves it all.
type application struct {
	cfg       config.Config
	logger    ectologger.Logger
	container ectocontainer.DIContainer

	sqlxDB       *sqlx.DB
	db           database.DB
	artists      *artistrepo.Repository
	tracks       *trackrepo.Repository
	consolidator *creditsvc.Consolidator

	producer  *kafka.Producer
	consumer  *kafka.Consumer
	projector *graphpkg.Projector
	querySvc  *graphpkg.QueryService
	graphDB   *graphpkg.Client

	echo    *echo.Echo
	checker *health.Checker
}

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&exporters.ConsoleExporter{}),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		logger.WithError(err).Error("Failed to register logger")
		os.Exit(1)
	}

	app := &application{cfg: cfg, logger: logger, container: container}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&postgresDependency{app: app})
	boot.AddDependency(&graphDependency{app: app})
	boot.AddDependency(&kafkaDependency{app: app})
	boot.AddDependency(&httpDependency{app: app})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	app.checker.SetReady(true)
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	<-ctx.Done()
	stop()

	logger.Info("Shutting down")
	app.checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	_ = provider.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// postgresDependency connects to the canonical store, runs migrations, and
// wires the repositories and domain services into the DI container
type postgresDependency struct {
	app *application
}

func (d *postgresDependency) GetName() string     { return "postgres" }
func (d *postgresDependency) DependsOn() []string { return nil }

func (d *postgresDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	logger := d.app.logger

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	d.app.sqlxDB = sqlxDB

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return err
	}

	d.app.db = database.NewDatabaseInstance(sqlxDB, logger)

	return d.wire()
}

// wire builds the repository and service graph on top of the live database
// handle and registers every piece the route handlers resolve from context
func (d *postgresDependency) wire() error {
	app := d.app
	cfg := app.cfg
	logger := app.logger

	artists := artistrepo.NewRepository(app.db, logger)
	tracks := trackrepo.NewRepository(app.db, logger)
	albums := albumrepo.NewRepository(app.db, logger)
	credits := creditrepo.NewRepository(app.db, logger)
	candidates := candidaterepo.NewRepository(app.db, logger)
	decisions := decisionrepo.NewRepository(app.db, logger)

	detector := dedupsvc.NewDetector(tracks, artists, albums, credits, candidates, nil, dedupsvc.Config{
		HighSimilarityThreshold: cfg.HighSimilarityThreshold,
		FeaturingBaseThreshold:  cfg.FeaturingBaseThreshold,
		CreditNameThreshold:     cfg.CreditNameThreshold,
		WorkerCount:             cfg.MergeWorkerCount,
	}, logger)

	engine := merging.NewEngine(logger, merging.NewTxBeginner(app.db, logger), tracks, artists, albums, credits, candidates, decisions, merging.Config{
		AutoMergeExact:          cfg.AutoMergeExact,
		AutoMergeHighConfidence: cfg.AutoMergeHighConfidence,
	})

	resolver := albumsvc.NewResolver(albums, tracks, albumsvc.Config{
		AlbumTrackFloor:         cfg.AlbumTrackFloor,
		HighSimilarityThreshold: cfg.HighSimilarityThreshold,
	}, logger)

	consolidator := creditsvc.NewConsolidator(credits, creditsvc.Config{
		MinCreditConfidence: cfg.MinCreditConfidence,
		SourcePriorities:    creditsvc.ParseSourcePriorities(cfg.CreditSourcePriorities),
	}, logger)

	generator := reportsvc.NewGenerator(candidates, tracks, albums, credits, logger)

	app.artists = artists
	app.tracks = tracks
	app.consolidator = consolidator

	registrations := []error{
		ectoinject.RegisterInstance[database.DB](app.container, app.db),
		ectoinject.RegisterInstance[*artistrepo.Repository](app.container, artists),
		ectoinject.RegisterInstance[*trackrepo.Repository](app.container, tracks),
		ectoinject.RegisterInstance[*albumrepo.Repository](app.container, albums),
		ectoinject.RegisterInstance[*creditrepo.Repository](app.container, credits),
		ectoinject.RegisterInstance[*candidaterepo.Repository](app.container, candidates),
		ectoinject.RegisterInstance[*decisionrepo.Repository](app.container, decisions),
		ectoinject.RegisterInstance[*dedupsvc.Detector](app.container, detector),
		ectoinject.RegisterInstance[*merging.Engine](app.container, engine),
		ectoinject.RegisterInstance[*albumsvc.Resolver](app.container, resolver),
		ectoinject.RegisterInstance[*creditsvc.Consolidator](app.container, consolidator),
		ectoinject.RegisterInstance[*reportsvc.Generator](app.container, generator),
	}
	for _, err := range registrations {
		if err != nil {
			return fmt.Errorf("failed to register dependency: %w", err)
		}
	}
	return nil
}

func (d *postgresDependency) Stop(ctx context.Context) error {
	if d.app.sqlxDB == nil {
		return nil
	}
	return d.app.sqlxDB.Close()
}

// graphDependency connects the optional graph projection store
type graphDependency struct {
	app *application
}

func (d *graphDependency) GetName() string     { return "graph" }
func (d *graphDependency) DependsOn() []string { return nil }

func (d *graphDependency) Start(ctx context.Context) error {
	app := d.app
	if !app.cfg.GraphDBEnabled {
		app.logger.Info("Graph projection disabled")
		return nil
	}

	client, err := graphpkg.NewClient(graphpkg.Config{
		Host:      app.cfg.GraphDBHost,
		Port:      app.cfg.GraphDBPort,
		Username:  app.cfg.GraphDBUser,
		Password:  app.cfg.GraphDBPassword,
		Database:  app.cfg.GraphDBName,
		Encrypted: app.cfg.GraphDBEncrypt,
		MaxConns:  app.cfg.GraphDBMaxConns,
	}, app.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph connectivity check failed: %w", err)
	}

	app.graphDB = client
	app.projector = graphpkg.NewProjector(client, app.logger)
	app.querySvc = graphpkg.NewQueryService(client, app.logger)

	registrations := []error{
		ectoinject.RegisterInstance[*graphpkg.Projector](app.container, app.projector),
		ectoinject.RegisterInstance[*graphpkg.QueryService](app.container, app.querySvc),
	}
	for _, err := range registrations {
		if err != nil {
			return fmt.Errorf("failed to register graph dependency: %w", err)
		}
	}
	return nil
}

func (d *graphDependency) Stop(ctx context.Context) error {
	if d.app.graphDB == nil {
		return nil
	}
	return d.app.graphDB.Close(ctx)
}

// kafkaDependency wires the output producer and, when enabled, the intake
// consumer feeding the processor
type kafkaDependency struct {
	app *application
}

func (d *kafkaDependency) GetName() string     { return "kafka" }
func (d *kafkaDependency) DependsOn() []string { return []string{"postgres", "graph"} }

func (d *kafkaDependency) Start(ctx context.Context) error {
	app := d.app
	cfg := app.cfg

	app.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, app.logger)

	emitter := events.NewEmitter(app.producer, app.logger)
	if err := ectoinject.RegisterInstance[*events.Emitter](app.container, emitter); err != nil {
		return fmt.Errorf("failed to register emitter: %w", err)
	}

	if !cfg.KafkaConsumerEnabled {
		app.logger.Info("Intake consumer disabled")
		return nil
	}

	proc := processor.NewProcessor(app.artists, app.tracks, app.consolidator, app.logger)
	if app.projector != nil {
		proc = proc.WithGraph(app.projector)
	}

	app.consumer = kafka.NewConsumer(cfg, app.logger, proc.HandleMessage)
	return app.consumer.Start(ctx)
}

func (d *kafkaDependency) Stop(ctx context.Context) error {
	if d.app.consumer != nil {
		if err := d.app.consumer.Stop(); err != nil {
			return err
		}
	}
	if d.app.producer != nil {
		return d.app.producer.Close()
	}
	return nil
}

// httpDependency serves the API
type httpDependency struct {
	app *application
}

func (d *httpDependency) GetName() string     { return "http" }
func (d *httpDependency) DependsOn() []string { return []string{"postgres", "graph", "kafka"} }

func (d *httpDependency) Start(ctx context.Context) error {
	app := d.app
	cfg := app.cfg

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes
	e.HTTPErrorHandler = middleware.Error(app.logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(app.logger))

	var consumerCheck interface{ Health() bool }
	if app.consumer != nil {
		consumerCheck = app.consumer
	}
	app.checker = health.NewChecker(app.sqlxDB, consumerCheck, version)
	app.checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	deduproutes.Register(api.Group("/dedup"))
	matchroutes.Register(api.Group("/match-candidates"))
	albumroutes.Register(api.Group("/albums"))
	creditroutes.Register(api.Group("/credits"))
	reportroutes.Register(api.Group("/reports"))
	graphroutes.NewHandler(app.querySvc, app.logger).Register(api.Group("/graph"))

	app.echo = e

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			app.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (d *httpDependency) Stop(ctx context.Context) error {
	if d.app.echo == nil {
		return nil
	}
	return d.app.echo.Shutdown(ctx)
}
