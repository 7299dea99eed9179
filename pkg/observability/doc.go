// Package observability provides structured logging, Prometheus metrics and
// operational endpoints.
//
// # Overview
//
// This package centralizes observability infrastructure: JSON logging via
// slog, metrics collection, health checks and graceful shutdown handling.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8080).Info("server started")
//
// Context-aware logging:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.FromContext(ctx).WithError(err).Error("request failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RequestsCreatedTotal.WithLabelValues("Invite", "workspace").Inc()
//	metrics.RequestsClosedTotal.WithLabelValues("Accepted").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(api.Version, db, redisClient)
//	status := checker.Check(ctx)
//	fmt.Printf("Status: %s\n", status.Status)
//
// # Graceful Shutdown
//
// Wait for a termination signal and drain:
//
//	manager := observability.NewShutdownManager(logger, server, 30*time.Second)
//	manager.RegisterShutdownFunc(func(ctx context.Context) error { return store.Close() })
//	err := manager.WaitForShutdown()
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: HTTP metrics middleware wiring
package observability
