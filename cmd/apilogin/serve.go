package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/apilogin/pkg/api"
	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/httputil"
	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/service"
	"github.com/platinummonkey/apilogin/pkg/tokens"
)

const dbStatsInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the service and login endpoints",
	Long: `Start the HTTP server that answers signed service requests at
/auth/apilogin/services.php and redeems login tokens at /login/index.php.

Liveness, readiness and Prometheus metrics are served on the health port.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"version":  version,
		"commit":   commit,
		"port":     cfg.Server.Port,
		"tokens":   cfg.Tokens.Backend,
		"settings": settingsSourceName(cfg),
	}).Info("Starting apilogin")

	otel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		_ = observability.ShutdownOTel(context.Background(), otel, logger)
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	generator, err := tokens.NewGenerator()
	if err != nil {
		b.Close()
		return err
	}

	svc, err := service.New(service.Config{
		Users:     b.users,
		Tokens:    b.tokens,
		Settings:  b.settings,
		Generator: generator,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		b.Close()
		return err
	}

	var limiter *httputil.IPRateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = httputil.NewIPRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 0, 0)
	}

	server, err := api.NewServer(api.Config{
		Service: svc,
		Sessions: api.NewMemorySessions(api.SessionOptions{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			MaxEntries: cfg.Session.MaxEntries,
			Secure:     cfg.Session.Secure,
		}),
		Logger:            logger,
		Metrics:           metrics,
		RateLimiter:       limiter,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		b.Close()
		return err
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthOpts := []observability.HealthOption{observability.WithVersion(version)}
	if b.redis != nil {
		healthOpts = append(healthOpts, observability.WithRedis(b.redis, true))
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(b.db.DB, healthOpts...))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	purger := tokens.NewPurger(b.tokens, logger).WithMetrics(metrics)
	if cfg.Tokens.PurgeSchedule != "" {
		if err := purger.Start(cfg.Tokens.PurgeSchedule); err != nil {
			b.Close()
			return err
		}
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterServer(apiServer)
	shutdown.RegisterServer(healthServer)
	shutdown.RegisterShutdownFunc("token purger", func(context.Context) error {
		purger.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otel, logger)
	})
	shutdown.RegisterShutdownFunc("backends", func(context.Context) error {
		b.Close()
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	if metrics != nil {
		g.Go(func() error {
			ticker := time.NewTicker(dbStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.RecordDBStats(b.db.Stats())
				}
			}
		})
	}
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("apilogin stopped")
	return nil
}

// settingsSourceName is used in log lines for the configured reader
func settingsSourceName(cfg *config.Config) string {
	if cfg.Settings.Source == config.SettingsSourceFile {
		return cfg.Settings.File
	}
	return "database"
}
