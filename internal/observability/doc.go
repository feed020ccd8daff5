// Package observability provides structured logging with zap, Prometheus
// metrics, and health/readiness checks for the CSE.
//
// # Logging
//
// Initialize the logger once at application startup:
//
//	logger, err := observability.InitLogger("production")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Use structured logging throughout the application:
//
//	logger.Info("dispatching create",
//	    zap.String("ri", ri),
//	    zap.String("originator", originator),
//	)
//
// Use context-aware logging:
//
//	logger := observability.LoggerFromContext(ctx)
//	logger.Info("operation completed")
//
// # Metrics
//
// Initialize metrics once at application startup:
//
//	metrics := observability.InitMetrics("acme_cse")
//
// Record dispatcher and notification metrics:
//
//	start := time.Now()
//	res := dispatcher.Create(ctx, parentRI, outerKey, body, originator, ty)
//	metrics.RecordDispatchOperation("create", ty.String(), time.Since(start), res.RSC.String())
//
//	metrics.SetSubscriptionCount(len(subscriptions))
//
// # Health Checks
//
// Create a health checker with registered checks:
//
//	healthChecker := observability.NewHealthChecker("v1.0.0")
//
//	healthChecker.RegisterReadinessCheck("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
//	    return redisClient.Ping(ctx).Err()
//	}))
//
//	healthChecker.RegisterReadinessCheck("mqtt", observability.MQTTBrokerHealthCheck(func(ctx context.Context) error {
//	    return mqttServer.Ping(ctx)
//	}))
//
// Expose health endpoints:
//
//	http.HandleFunc("/health", healthChecker.HealthHandler())
//	http.HandleFunc("/ready", healthChecker.ReadinessHandler())
//	http.HandleFunc("/live", observability.LivenessHandler())
package observability
