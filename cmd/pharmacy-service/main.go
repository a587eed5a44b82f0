package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/consumers"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/engine"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/handler"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/metrics"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/migrations"
	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

const serviceName = "pharmacy-service"

func main() {
	// Fails fast in production-like environments when required config is missing
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// The migrator is left open: closing it closes db as well.
	migrator, err := database.NewMigrator(db.DB.DB, migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare migrations")
	}
	if err := migrator.Up(); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	inspectionRepo := repository.NewInspectionRepository(db)
	lostSaleRepo := repository.NewLostSaleRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	// Idempotency ledger. Only the postgres ledger needs purging; redis keys expire.
	var (
		ledger engine.IdempotencyLedger
		purger service.LedgerPurger
		rdb    *redis.Client
	)
	switch cfg.Pharmacy.IdempotencyBackend {
	case config.LedgerRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		ledger = repository.NewRedisLedger(rdb, cfg.Pharmacy.IdempotencyTTL)
	default:
		appliedRepo := repository.NewAppliedRequestRepository(db)
		ledger = appliedRepo
		purger = appliedRepo
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	allocationMetrics := metrics.NewAllocationMetrics(registry)

	eng := engine.New(batchRepo, ledger, engine.Config{
		Policy: domain.EligibilityPolicy{DispenseApproved: cfg.Pharmacy.DispenseApproved},
	}, allocationMetrics, log)

	// Events are optional: a nil publisher drops them
	var (
		rmq       *messaging.RabbitMQ
		publisher *events.PharmacyEventPublisher
	)
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}

		publisher, err = events.NewPharmacyEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	inventoryService := service.NewInventoryService(service.Stores{
		Batches:     batchRepo,
		Movements:   movementRepo,
		Inspections: inspectionRepo,
		LostSales:   lostSaleRepo,
		Alerts:      alertRepo,
	}, eng, publisher, allocationMetrics, service.Options{
		IntakeZone:        domain.Zone(cfg.Pharmacy.IntakeZone),
		CommitRetryBudget: cfg.Pharmacy.CommitRetryBudget,
	}, log)

	if rmq != nil {
		fulfillmentConsumer, err := consumers.NewFulfillmentConsumer(rmq, inventoryService, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create fulfillment consumer")
		}
		if err := fulfillmentConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start fulfillment consumer")
		}
	}

	scanner := service.NewExpiryScanner(batchRepo, alertRepo, publisher, allocationMetrics,
		cfg.Pharmacy.ExpiryWarningDays, eng.Now, log)
	scheduler := service.NewExpiryScheduler(scanner, alertRepo, purger, service.SchedulerOptions{
		Interval:       cfg.Pharmacy.ExpiryScanInterval,
		AlertRetention: cfg.Pharmacy.AlertRetention,
		LedgerTTL:      cfg.Pharmacy.IdempotencyTTL,
	}, log)
	scheduler.Start(ctx)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Actor)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return strings.HasPrefix(origin, "http://localhost:") || strings.HasSuffix(origin, ".medflow.de")
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		if rdb != nil {
			redisStatus := "up"
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				redisStatus = "down"
			}
			status["redis"] = redisStatus
		}
		httputil.JSON(w, http.StatusOK, status)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	handler.Mount(r, inventoryService, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stops consumers and the scheduler
	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
