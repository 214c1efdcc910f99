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
	"github.com/rifat-hasan/usergate/services/user-service/internal/events"
	"github.com/rifat-hasan/usergate/services/user-service/internal/handlers"
	"github.com/rifat-hasan/usergate/services/user-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "user-service")
	variant := config.String("SERVICE_VARIANT", handlers.VariantV1)
	port, err := config.Port("PORT", "3001")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service).With("variant", variant)

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

	brokers := config.String("KAFKA_BROKERS", "kafka:9092")
	publisher := newPublisher(ctx, logger, brokers)
	defer func() { _ = publisher.Close() }()

	repo := storage.NewRepository(pool)
	handler := handlers.New(repo, publisher, logger, variant)

	mux := runtime.NewBaseMuxWithReady(readyChecks(pool, brokers, publisher)...)
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
		Handler:           otelhttp.NewHandler(chained, "user-service"),
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
// events are actually being emitted. A deliberately degraded instance
// must stay in rotation, so the noop publisher drops the kafka check.
func readyChecks(pool *db.Pool, brokers string, publisher events.Publisher) []runtime.ReadyCheck {
	checks := []runtime.ReadyCheck{{Name: "postgres", Check: db.ReadyCheck(pool)}}
	if _, degraded := publisher.(events.NoopPublisher); !degraded {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	return checks
}

// newPublisher applies BROKER_STARTUP_POLICY. "fatal" (the default)
// exits when the broker is unreachable at startup; "degrade" keeps the
// HTTP surface up with event emission disabled.
func newPublisher(ctx context.Context, logger *slog.Logger, brokers string) events.Publisher {
	policy := config.String("BROKER_STARTUP_POLICY", "fatal")

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := kafkax.Ping(pingCtx, brokers)
	cancel()
	if err == nil {
		return events.NewKafkaPublisher(logger, events.KafkaConfig{Brokers: brokers})
	}

	if policy == "degrade" {
		logger.Warn("broker unreachable, event emission disabled", "err", err, "brokers", brokers)
		return events.NoopPublisher{}
	}
	logger.Error("broker unreachable at startup", "err", err, "brokers", brokers)
	os.Exit(1)
	return nil
}
