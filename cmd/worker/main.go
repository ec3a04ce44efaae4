// worker is the background evaluation process.  It consumes evaluation
// requests from Kafka and sweeps active cases on an interval so day-boundary
// effects (reminder windows opening, risk snapshots rolling over, escalation
// offsets being reached) land without any user action.  A per-case Redis
// lock keeps concurrent workers from evaluating the same case twice.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caselight/caselight/internal/application/caseops"
	"github.com/caselight/caselight/internal/config"
	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres/repositories"
	"github.com/caselight/caselight/internal/infrastructure/database/redis"
	"github.com/caselight/caselight/internal/infrastructure/messaging/kafka"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

const (
	defaultPollInterval = time.Hour
	sweepPageSize       = 100
	healthPort          = 8081
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: env only)")
	pollInterval := flag.Duration("poll-interval", 0, "active-case sweep interval (overrides config)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *pollInterval > 0 {
		cfg.Worker.PollInterval = *pollInterval
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = defaultPollInterval
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("worker")

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	locks := redis.NewLockFactory(redisClient, cfg.Redis.KeyPrefix, logger)

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	svc, err := caseops.NewService(caseops.Repositories{
		Cases:       repositories.NewCaseRepository(conn, logger),
		Events:      repositories.NewTaskEventRepository(conn, logger),
		Deadlines:   repositories.NewDeadlineRepository(conn, logger),
		Escalations: repositories.NewEscalationRepository(conn, logger),
		Snapshots:   repositories.NewRiskSnapshotRepository(conn, logger),
		Alerts:      repositories.NewHealthAlertRepository(conn, logger),
		Workflow:    repositories.NewWorkflowRepository(conn, logger),
	}, logger,
		caseops.WithCache(redis.NewCache(redisClient, logger)),
		caseops.WithPublisher(producer),
		caseops.WithMetrics(appMetrics),
	)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}

	w := &worker{svc: svc, locks: locks, logger: logger}

	topics := []string{
		kafka.TopicEvaluationRequested,
		kafka.TopicEscalationTriggered,
		kafka.TopicHealthAlertRaised,
		kafka.TopicWorkflowAdvanced,
	}
	consumer, err := kafka.NewConsumer(cfg.Kafka, topics, kafka.RetryConfig{
		MaxRetries:      cfg.Worker.MaxRetries,
		RetryBackoff:    cfg.Worker.RetryBackoff,
		DeadLetterTopic: kafka.TopicDeadLetter,
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.Subscribe(kafka.TopicEvaluationRequested, w.handleEvaluationRequested)
	consumer.Subscribe(kafka.TopicEscalationTriggered, w.handleNotification)
	consumer.Subscribe(kafka.TopicHealthAlertRaised, w.handleNotification)
	consumer.Subscribe(kafka.TopicWorkflowAdvanced, w.handleNotification)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("consumer start: %w", err)
	}
	defer consumer.Close()

	healthSrv := startHealthServer(collector, logger)
	defer healthSrv.Shutdown(context.Background())

	logger.Info("worker started",
		logging.Duration("poll_interval", cfg.Worker.PollInterval),
		logging.Int("concurrency", cfg.Worker.Concurrency))

	ticker := time.NewTicker(cfg.Worker.PollInterval)
	defer ticker.Stop()

	// First sweep right away; restarts should not wait a full interval.
	w.sweepActiveCases(ctx, cfg.Worker.Concurrency)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case <-ticker.C:
			w.sweepActiveCases(ctx, cfg.Worker.Concurrency)
		}
	}
}

type worker struct {
	svc    *caseops.Service
	locks  redis.LockFactory
	logger logging.Logger
}

// handleEvaluationRequested processes one on-demand evaluation request.
func (w *worker) handleEvaluationRequested(ctx context.Context, msg *kafka.Message) error {
	var envelope kafka.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "malformed event envelope")
	}
	var payload kafka.EvaluationRequestedPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "malformed evaluation request payload")
	}
	if payload.CaseID == "" {
		return apperrors.New(apperrors.ErrCodeValidation, "evaluation request missing case_id")
	}

	return w.evaluateLocked(ctx, common.ID(payload.CaseID))
}

// handleNotification is the delivery seam for user-facing channels.  Until a
// channel (email, SMS, push) is wired, dispatch means a structured log entry;
// the payload already passed the safety filter before it was published.
func (w *worker) handleNotification(_ context.Context, msg *kafka.Message) error {
	var envelope kafka.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "malformed event envelope")
	}
	w.logger.Info("dispatching notification",
		logging.String("topic", msg.Topic),
		logging.String("event_type", envelope.EventType),
		logging.String("event_id", envelope.EventID),
		logging.String("payload", string(envelope.Payload)))
	return nil
}

// evaluateLocked runs one evaluation under the per-case lock.  A held lock
// means another worker is already on it; skipping is correct because the
// pipeline is idempotent and the peer's pass covers this request.
func (w *worker) evaluateLocked(ctx context.Context, caseID common.ID) error {
	lock := w.locks.NewLock("evaluate:" + string(caseID))
	acquired, err := lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		w.logger.Debug("case evaluation already in progress", logging.String("case_id", string(caseID)))
		return nil
	}
	defer lock.Unlock(ctx)

	_, err = w.svc.EvaluateCase(ctx, caseID, time.Time{})
	if err != nil && apperrors.IsCode(err, apperrors.ErrCodeCaseArchived) {
		// Cases closed between enqueue and processing are not failures.
		return nil
	}
	return err
}

// sweepActiveCases evaluates every active case, a page at a time, fanning
// out across a bounded set of goroutines.
func (w *worker) sweepActiveCases(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	start := time.Now()
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var swept int

	for offset := 0; ; offset += sweepPageSize {
		cases, _, err := w.svc.ListCases(ctx,
			casefile.WithStatus(casefile.CaseStatusActive),
			casefile.WithLimit(sweepPageSize),
			casefile.WithOffset(offset),
		)
		if err != nil {
			w.logger.Error("listing active cases failed", logging.Err(err))
			break
		}
		if len(cases) == 0 {
			break
		}

		for _, c := range cases {
			if ctx.Err() != nil {
				wg.Wait()
				return
			}
			caseID := c.ID
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				if err := w.evaluateLocked(ctx, caseID); err != nil {
					w.logger.Error("sweep evaluation failed",
						logging.String("case_id", string(caseID)),
						logging.Err(err))
				}
			}()
		}
		swept += len(cases)
		if len(cases) < sweepPageSize {
			break
		}
	}
	wg.Wait()

	w.logger.Info("active-case sweep complete",
		logging.Int("cases", swept),
		logging.Duration("took", time.Since(start)))
}

// startHealthServer exposes liveness and metrics for the worker process.
func startHealthServer(collector prometheus.MetricsCollector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", healthPort), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}
