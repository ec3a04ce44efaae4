package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/application/caseops"
	"github.com/caselight/caselight/internal/config"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres/repositories"
	"github.com/caselight/caselight/internal/infrastructure/database/redis"
	"github.com/caselight/caselight/internal/infrastructure/messaging/kafka"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/prometheus"
	caselighthttp "github.com/caselight/caselight/internal/interfaces/http"
	"github.com/caselight/caselight/internal/interfaces/http/handlers"
)

func newServeCmd(opts *RootOptions) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CaseLight API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			return RunServe(cmd.Context(), cfg, logger, skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not run schema migrations on startup")
	return cmd
}

// RunServe wires the full API server stack and blocks until the context is
// cancelled or the listener fails.  cmd/apiserver reuses it directly.
func RunServe(parent context.Context, cfg *config.Config, logger logging.Logger, skipMigrations bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting caselight",
		logging.String("version", Version),
		logging.String("commit", GitCommit))

	// ── Database ────────────────────────────────────────────────────────
	if !skipMigrations {
		if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	// ── Cache ───────────────────────────────────────────────────────────
	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, logger)

	// ── Messaging ───────────────────────────────────────────────────────
	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	if tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger); err != nil {
		logger.Warn("kafka topic manager unavailable, topics must exist already", logging.Err(err))
	} else {
		if err := tm.EnsureDefaultTopics(ctx); err != nil {
			logger.Warn("ensuring kafka topics failed", logging.Err(err))
		}
		tm.Close()
	}

	// ── Metrics ─────────────────────────────────────────────────────────
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            "api",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	// ── Application service ─────────────────────────────────────────────
	svc, err := caseops.NewService(caseops.Repositories{
		Cases:       repositories.NewCaseRepository(conn, logger),
		Events:      repositories.NewTaskEventRepository(conn, logger),
		Deadlines:   repositories.NewDeadlineRepository(conn, logger),
		Escalations: repositories.NewEscalationRepository(conn, logger),
		Snapshots:   repositories.NewRiskSnapshotRepository(conn, logger),
		Alerts:      repositories.NewHealthAlertRepository(conn, logger),
		Workflow:    repositories.NewWorkflowRepository(conn, logger),
	}, logger,
		caseops.WithCache(cache),
		caseops.WithPublisher(producer),
		caseops.WithMetrics(appMetrics),
	)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}

	// ── HTTP ────────────────────────────────────────────────────────────
	caseHandler := handlers.NewCaseHandler(svc, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": handlers.PingFunc(conn.HealthCheck),
		"redis":    handlers.PingFunc(redisClient.Ping),
	}, logger)

	router := caselighthttp.NewRouter(caselighthttp.RouterConfig{
		CaseHandler:   caseHandler,
		HealthHandler: healthHandler,
		Logger:        logger,
		AppMetrics:    appMetrics,
		Collector:     collector,
		Mode:          cfg.Server.Mode,
	})
	server := caselighthttp.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
	return server.Stop(context.Background())
}
