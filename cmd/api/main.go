package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/peptide-shop/internal/affiliate"
	"github.com/safar/peptide-shop/internal/cache"
	"github.com/safar/peptide-shop/internal/config"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/httpapi"
	"github.com/safar/peptide-shop/internal/notify"
	"github.com/safar/peptide-shop/internal/orders"
	"github.com/safar/peptide-shop/internal/store"
	"github.com/safar/peptide-shop/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, cfg.App.Environment)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("Flush traces", zap.Error(err))
		}
	}()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to database")

	st := store.New(db)

	var idempotency cache.Idempotency
	if cfg.Redis.Addr != "" {
		client := cache.NewRedisClient(cfg.Redis)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			// Requests are still served without replay protection.
			logger.Warn("Redis unavailable, idempotency keys will be ignored until it recovers", zap.Error(err))
		}
		idempotency = cache.NewRedisIdempotency(client, cfg.Telemetry.ServiceName, cfg.Redis.IdempotencyTTL)
	}

	templates, err := notify.ParseTemplates()
	if err != nil {
		return err
	}
	outbox := notify.NewOutbox(st, templates, cfg.Notify.AdminEmail)
	worker := notify.NewWorker(st, notify.NewMailer(cfg.Notify, logger), logger, cfg.Notify)

	manager := orders.NewManager(st, outbox, logger, orders.Options{
		TaxRate: cfg.Orders.TaxRate,
		Timeout: cfg.Orders.Timeout,
		Policy:  orders.PolicyFor(cfg.Orders.StrictTransitions),
	})
	affiliates := affiliate.NewService(st, outbox, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Orders:      manager,
		Affiliates:  affiliates,
		Catalog:     st,
		Peptides:    st,
		Users:       st,
		Health:      st,
		Auth:        st,
		Idempotency: idempotency,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "http.server"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.App.Environment),
			zap.Bool("strict_transitions", cfg.Orders.StrictTransitions),
			zap.Bool("idempotency", idempotency != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
