package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	marketconfig "lendmarket/config"
	"lendmarket/native/assets"
	"lendmarket/native/lending"
	"lendmarket/native/oracle"
	"lendmarket/observability"
	"lendmarket/observability/logging"
	telemetry "lendmarket/observability/otel"
	"lendmarket/services/lendingd/config"
	"lendmarket/services/lendingd/middleware"
	"lendmarket/services/lendingd/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("LENDMARKET_ENV"))
	logger, logCloser := logging.New(logging.Options{
		Service:    "lendingd",
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, os.Stdout)
	defer logCloser.Close()

	endpoint := cfg.Telemetry.Endpoint
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); value != "" {
		endpoint = value
	}
	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Error("init telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	market, err := marketconfig.Load(cfg.MarketFile)
	if err != nil {
		logger.Error("load market catalog", slog.String("path", cfg.MarketFile), slog.Any("error", err))
		os.Exit(1)
	}
	registry, err := market.Registry()
	if err != nil {
		logger.Error("build asset registry", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.Lending()
	sink := observability.NewEventSink(logger, metrics)
	prices := market.PriceSource()
	proto, err := lending.New(market.Lending, registry, prices,
		lending.WithEmitter(sink))
	if err != nil {
		logger.Error("init lending protocol", slog.Any("error", err))
		os.Exit(1)
	}
	sink.TrackPools(proto)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Oracle.Enabled() {
		refresher, err := newRefresher(cfg.Oracle, proto, prices, metrics, logger)
		if err != nil {
			logger.Error("init price feed", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("price refresher stopped", slog.Any("error", err))
			}
		}()
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}, logger, metrics.RecordThrottle)
	srv, err := server.New(server.Config{
		Protocol:    proto,
		Logger:      logger,
		Metrics:     metrics,
		RateLimiter: limiter,
	})
	if err != nil {
		logger.Error("init server", slog.Any("error", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(srv.Router(), "lendingd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", slog.String("addr", cfg.ListenAddress))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func newRefresher(cfg config.OracleConfig, proto *lending.Protocol, prices oracle.Freshness, metrics *observability.LendingMetrics, logger *slog.Logger) (*oracle.Refresher, error) {
	client := &http.Client{
		Timeout:   cfg.FetchTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	feed, err := oracle.NewHTTPFeed(cfg.FeedURL, client)
	if err != nil {
		return nil, err
	}
	symbols := make([]assets.Symbol, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		symbols = append(symbols, assets.NewSymbol(symbol))
	}
	apply := func(symbol assets.Symbol, quote oracle.Quote) error {
		res, err := proto.UpdatePriceAt(symbol, quote.Price, quote.Currency, quote.UpdatedAt)
		if err != nil {
			return err
		}
		metrics.SetOpportunities(len(res.Opportunities))
		return nil
	}
	return oracle.NewRefresher(feed, apply, oracle.RefresherConfig{
		Symbols:           symbols,
		Interval:          cfg.Interval,
		FetchTimeout:      cfg.FetchTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		OnResult: func(symbol assets.Symbol, err error) {
			metrics.RecordPriceRefresh(symbol.String(), err)
		},
		MaxAge:    cfg.MaxAge,
		Freshness: prices,
		OnStale:   func(stale []assets.Symbol) { metrics.SetStaleQuotes(len(stale)) },
	}, logger.With(slog.String("component", "oracle"))), nil
}
