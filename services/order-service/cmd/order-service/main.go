package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rifat-hasan/usergate/libs/config"
	"github.com/rifat-hasan/usergate/libs/db"
	"github.com/rifat-hasan/usergate/libs/httpx"
	"github.com/rifat-hasan/usergate/libs/kafkax"
	otelx "github.com/rifat-hasan/usergate/libs/otel"
	"github.com/rifat-hasan/usergate/libs/runtime"
	"github.com/rifat-hasan/usergate/services/order-service/internal/handlers"
	"github.com/rifat-hasan/usergate/services/order-service/internal/storage"
	ordersync "github.com/rifat-hasan/usergate/services/order-service/internal/sync"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "order-service")
	port, err := config.Port("PORT", "3003")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, int32(config.Int("DB_MAX_CONNS", 10)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	handler := handlers.New(repo, logger)

	brokers := config.String("KAFKA_BROKERS", "kafka:9092")
	consuming := startConsumer(ctx, logger, brokers, repo)

	mux := runtime.NewBaseMuxWithReady(readyChecks(pool, brokers, consuming)...)
	handler.Register(mux)

	chained := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(chained, "order-service"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// readyChecks gates /readyz on postgres always and on kafka only while
// the sync consumer runs. A deliberately degraded instance must stay in
// rotation for its CRUD surface.
func readyChecks(pool *db.Pool, brokers string, consuming bool) []runtime.ReadyCheck {
	checks := []runtime.ReadyCheck{{Name: "postgres", Check: db.ReadyCheck(pool)}}
	if consuming {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	return checks
}

// startConsumer applies BROKER_STARTUP_POLICY. "fatal" (the default)
// exits when the broker is unreachable at startup; "degrade" serves
// the CRUD surface with synchronization disabled. Reports whether the
// consumer is running.
func startConsumer(ctx context.Context, logger *slog.Logger, brokers string, repo *storage.Repository) bool {
	policy := config.String("BROKER_STARTUP_POLICY", "fatal")

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := kafkax.Ping(pingCtx, brokers)
	cancel()
	if err != nil {
		if policy == "degrade" {
			logger.Warn("broker unreachable, user sync disabled", "err", err, "brokers", brokers)
			return false
		}
		logger.Error("broker unreachable at startup", "err", err, "brokers", brokers)
		os.Exit(1)
	}

	reconciler := ordersync.NewReconciler(repo, logger)
	consumer := ordersync.NewConsumer(logger, ordersync.Config{
		Brokers:  brokers,
		GroupID:  config.String("KAFKA_GROUP_ID", "order-service"),
		Topic:    config.String("KAFKA_CONSUME_TOPIC", "user.sync"),
		DLQTopic: config.String("KAFKA_DLQ_TOPIC", ""),
	}, reconciler.Apply)
	go consumer.Run(ctx)
	logger.Info("consuming user sync events", "topic", config.String("KAFKA_CONSUME_TOPIC", "user.sync"))
	return true
}
