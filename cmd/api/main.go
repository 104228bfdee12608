package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/luxeledger/inventory-backend/api/controllers"
	"github.com/luxeledger/inventory-backend/api/routes"
	"github.com/luxeledger/inventory-backend/internal/auth"
	"github.com/luxeledger/inventory-backend/internal/ledger"
	"github.com/luxeledger/inventory-backend/internal/notifications"
	"github.com/luxeledger/inventory-backend/internal/users"
	"github.com/luxeledger/inventory-backend/pkg/auth/session"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/db"
	"github.com/luxeledger/inventory-backend/pkg/logger"
	"github.com/luxeledger/inventory-backend/pkg/metrics"
	"github.com/luxeledger/inventory-backend/pkg/migrate"
	"github.com/luxeledger/inventory-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers = append(closers, redisClient)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	authMetrics := metrics.NewAuthMetrics(registry)

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	store := ledger.NewStore(ledgerRepo)
	if err := store.Hydrate(ctx, ledgerRepo); err != nil {
		return err
	}
	// a tampered ledger still serves reads; the verify endpoint reports details
	if verr := store.Verify(); verr != nil {
		logg.Error(logg.WithField(ctx, "records", store.Len()), "ledger verification failed on boot", verr)
	}
	ledgerMetrics.SetRecords(store.Len())

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Store:   store,
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	var flows auth.FlowStore = auth.NewMemoryFlowStore()
	flowBackend := "memory"
	if cfg.FeatureFlags.UseRedisFlows {
		flowBackend = "redis"
		redisFlows, err := auth.NewRedisFlowStore(redisClient)
		if err != nil {
			return err
		}
		flows = redisFlows
	}

	var deliverer auth.CodeDeliverer
	switch strings.ToLower(cfg.OTP.Deliverer) {
	case config.OTPDelivererLog:
		logDeliverer, err := notifications.NewLogDeliverer(logg)
		if err != nil {
			return err
		}
		deliverer = logDeliverer
	default:
		publisher, err := notifications.NewPublisher(cfg.Broker.URL, cfg.Broker.OTPQueue, logg)
		if err != nil {
			return err
		}
		closers = append(closers, publisher)
		deliverer = publisher
	}

	issuer, err := auth.NewIssuer(auth.IssuerParams{
		Accounts:       users.NewRepository(dbClient.DB()),
		Sessions:       sessionManager,
		Flows:          flows,
		Deliverer:      deliverer,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		OTPConfig:      cfg.OTP,
		Metrics:        authMetrics,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"db_driver":  dbClient.Driver(),
		"flow_store": flowBackend,
		"deliverer":  cfg.OTP.Deliverer,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			redisClient,
			sessionManager,
			issuer,
			ledgerService,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
