package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/batchflow/batchflow-backend/internal/trace/consumers"
	"github.com/batchflow/batchflow-backend/internal/trace/events"
	"github.com/batchflow/batchflow-backend/internal/trace/handler"
	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/config"
	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/batchflow/batchflow-backend/pkg/httputil"
	"github.com/batchflow/batchflow-backend/pkg/logger"
	"github.com/batchflow/batchflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("trace-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("trace-service", cfg.Server.Environment)
	log.Info().Msg("starting Trace Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewTraceEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	materialRepo := repository.NewMaterialBatchRepository(db)
	productionRepo := repository.NewProductionBatchRepository(db)
	finishedRepo := repository.NewFinishedGoodsRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	stockRepo := repository.NewStockRecordRepository(db)
	seqRepo := repository.NewSequenceRepository(db)
	docRepo := repository.NewDocumentRefRepository(db)

	// Initialize services
	numberService := service.NewBatchNumberService(seqRepo, cfg.BatchNumber, log)
	batchService := service.NewBatchService(db, materialRepo, productionRepo, finishedRepo, usageRepo, stockRepo, numberService, publisher, log)
	ledgerService := service.NewLedgerService(db, materialRepo, productionRepo, usageRepo, publisher, log)
	traceService := service.NewTraceService(materialRepo, productionRepo, finishedRepo, usageRepo, docRepo, log)
	reconciliationService := service.NewReconciliationService(materialRepo, finishedRepo, usageRepo, stockRepo, publisher, log)
	expiryService := service.NewExpiryService(materialRepo, publisher, log)

	// Initialize handlers
	batchHandler := handler.NewBatchHandler(batchService, expiryService, log)
	usageHandler := handler.NewUsageHandler(ledgerService, log)
	traceHandler := handler.NewTraceHandler(traceService, log)
	balanceHandler := handler.NewBalanceHandler(reconciliationService, expiryService, log)

	// Start document event consumer
	docConsumer, err := consumers.NewDocumentEventConsumer(rmq, docRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create document event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := docConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start document event consumer")
	}

	// Start expiry scheduler
	scheduler := service.NewExpiryScheduler(expiryService, cfg.Scheduler.ExpirySweepInterval, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	// CORS for the operator frontends
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "trace-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/trace", func(r chi.Router) {
		// Material batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", batchHandler.ReceiveMaterial)
			r.Get("/{id}", batchHandler.GetMaterial)
			r.Put("/{id}", batchHandler.UpdateMaterial)
			r.Delete("/{id}", batchHandler.DeleteMaterial)
			r.Get("/{id}/balance", balanceHandler.CheckBatch)
			r.Get("/{id}/usages", usageHandler.ListByMaterial)
			r.Get("/{id}/forward", traceHandler.Forward)
		})

		r.Get("/materials/{materialId}/batches", batchHandler.ListByMaterial)
		r.Get("/materials/{materialId}/fifo", batchHandler.FIFOCandidates)

		// Production batch routes
		r.Route("/productions", func(r chi.Router) {
			r.Post("/", batchHandler.CreateProduction)
			r.Get("/{id}", batchHandler.GetProduction)
			r.Post("/{id}/start", batchHandler.StartProduction)
			r.Post("/{id}/complete", batchHandler.CompleteProduction)
			r.Get("/{id}/usages", usageHandler.ListByProduction)
		})

		// Usage ledger routes
		r.Route("/usages", func(r chi.Router) {
			r.Post("/", usageHandler.Record)
			r.Delete("/{id}", usageHandler.Reverse)
		})

		// Finished goods traceability
		r.Get("/finished/{id}/backward", traceHandler.Backward)

		// Reconciliation and expiry
		r.Get("/balance", balanceHandler.CheckAll)
		r.Post("/expiry/lock", balanceHandler.LockExpired)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the consumer and scheduler
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
