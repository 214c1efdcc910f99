package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rifat-hasan/usergate/libs/config"
	"github.com/rifat-hasan/usergate/libs/httpx"
	otelx "github.com/rifat-hasan/usergate/libs/otel"
	"github.com/rifat-hasan/usergate/libs/runtime"
	"github.com/rifat-hasan/usergate/services/gateway-service/internal/proxy"
	"github.com/rifat-hasan/usergate/services/gateway-service/internal/split"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	mux := runtime.NewBaseMuxWithReady()
	registerRoutes(mux, logger)

	bodyLimit := int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))
	requestTimeout := time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)

	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id")),
			AllowCredentials: isTruthy(config.String("CORS_ALLOW_CREDENTIALS", "false")),
			MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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

func registerRoutes(mux *http.ServeMux, logger *slog.Logger) {
	userV1 := mustParseURL(config.String("USER_V1_URL", "http://user-v1:3001"))
	userV2 := mustParseURL(config.String("USER_V2_URL", "http://user-v2:3002"))
	orderURL := mustParseURL(config.String("ORDER_URL", "http://order-service:3003"))
	weight := config.Percent("USER_SPLIT_PERCENT", 50)

	// Strangler split: weight% of /users traffic goes to the v1
	// instance, the rest to v2. Each request draws independently.
	splitter := split.New(weight, userV1.String(), userV2.String())
	logger.Info("user traffic split configured", "v1_percent", weight, "v1", userV1.String(), "v2", userV2.String())

	// Read-only after startup, safe to share across requests.
	targets := map[string]*url.URL{
		userV1.String(): userV1,
		userV2.String(): userV2,
	}

	otelTransport := otelhttp.NewTransport(http.DefaultTransport)

	userProxy := proxy.New(logger, proxy.Config{
		Prefix: "/users",
		Pick: func() *url.URL {
			return targets[splitter.Pick()]
		},
		Transport: otelTransport,
	})
	orderProxy := proxy.New(logger, proxy.Config{
		Prefix:    "/orders",
		Pick:      proxy.SingleTarget(orderURL),
		Transport: otelTransport,
	})

	registerProxy(mux, "/users", userProxy)
	registerProxy(mux, "/orders", orderProxy)
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	mux.Handle(prefix, handler)
	mux.Handle(prefix+"/", handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
