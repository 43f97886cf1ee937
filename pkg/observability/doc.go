// Package observability provides structured logging, Prometheus metrics,
// health checks, graceful shutdown and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("method", "logUser").Info("token issued")
//
// Request scoped values travel in the context and are attached by FromContext:
//
//	ctx = observability.WithRequestID(ctx, id)
//	observability.FromContext(ctx).Warn("signature mismatch")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveService("getUser", true, elapsed)
//	metrics.TokenRedeemed("success")
//
// All Metrics methods are safe on a nil receiver so callers may run without
// metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db.DB, observability.WithRedis(client, true))
//	observability.RegisterHealthRoutes(serveMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
//	ctx, span := observability.StartSpan(ctx, "service.logUser")
//	defer observability.EndSpan(span, err)
package observability
