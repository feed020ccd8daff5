// Package main is the entry point for the oneM2M CSE middleware. It
// initializes and starts the production-ready HTTP (and optional MQTT)
// CSE server.
//
// The application performs the following initialization sequence:
//  1. Load configuration from config file and environment variables
//  2. Initialize structured logging with zap
//  3. Connect to storage (Redis, or in-memory for single-process deployments)
//  4. Wire the resource factory, policy validator, security manager, event
//     bus, dispatcher, notification manager, and announcement manager
//  5. Seed the resource tree with the CSEBase and default ACP via the boot
//     importer
//  6. Configure HTTP (and optional MQTT) transports
//  7. Register health checks for observability
//  8. Start the HTTP server with graceful shutdown support
//
// Graceful shutdown is triggered by SIGINT (Ctrl+C) or SIGTERM signals.
//
// Example usage:
//
//	# Start with default config
//	./cse
//
//	# Start with custom config file
//	./cse --config=/etc/acme-cse/config.yaml
//
//	# Start with environment variable overrides
//	export ACME_CSE_SERVER_PORT=9090
//	export ACME_CSE_REDIS_ADDRESSES=redis.example.com:6379
//	./cse
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/announce"
	"github.com/onem2m/acme-cse/internal/boot"
	"github.com/onem2m/acme-cse/internal/config"
	"github.com/onem2m/acme-cse/internal/dispatcher"
	"github.com/onem2m/acme-cse/internal/eventbus"
	"github.com/onem2m/acme-cse/internal/factory"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/notify"
	"github.com/onem2m/acme-cse/internal/observability"
	"github.com/onem2m/acme-cse/internal/policy"
	"github.com/onem2m/acme-cse/internal/requestmanager"
	"github.com/onem2m/acme-cse/internal/security"
	"github.com/onem2m/acme-cse/internal/storage"
	httptransport "github.com/onem2m/acme-cse/internal/transport/http"
	mqtttransport "github.com/onem2m/acme-cse/internal/transport/mqtt"
)

const (
	// Version is the application version (set via build flags).
	Version = "1.0.0"

	// ServiceName is the name of this service.
	ServiceName = "acme-cse"
)

var (
	// Command-line flags.
	configPath  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		if _, err := fmt.Fprintf(os.Stdout, "%s version %s\n", ServiceName, Version); err != nil {
			panic(err)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic. It returns an error if any
// critical initialization or runtime error occurs.
func run() error {
	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	logger.Info("acme-cse starting",
		zap.String("version", Version),
		zap.String("service", ServiceName),
		zap.String("csi", cfg.CSE.CSEID),
		zap.String("cse_type", cfg.CSE.Type),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(logger); err != nil {
			logger.Error("failed to close components", zap.Error(err))
		}
	}()

	if err := seedResourceTree(components, cfg, logger); err != nil {
		return fmt.Errorf("failed to seed resource tree: %w", err)
	}

	return runServers(cfg, logger, components)
}

// ApplicationComponents holds every initialized application component,
// mirroring cmd/gateway/main.go's ApplicationComponents aggregation
// pattern generalized to the CSE's wider component graph.
type ApplicationComponents struct {
	store          storage.Store
	redisStore     *storage.RedisStore
	bus            eventbus.Bus
	factory        *factory.Factory
	validator      *policy.Validator
	security       *security.Manager
	dispatcher     *dispatcher.Dispatcher
	requestManager *requestmanager.Manager
	notifyMgr      *notify.Manager
	announceMgr    *announce.Manager
	healthChecker  *observability.HealthChecker
	metrics        *observability.Metrics
	httpServer     *httptransport.Server
	mqttServer     *mqtttransport.Server
	sweepCancel    context.CancelFunc
}

// Close closes all components gracefully and returns any errors
// encountered. All components are closed even if earlier close
// operations fail; errors are aggregated with errors.Join.
func (c *ApplicationComponents) Close(logger *zap.Logger) error {
	var closeErrors []error

	if c.sweepCancel != nil {
		c.sweepCancel()
	}
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			logger.Warn("failed to close event bus", zap.Error(err))
			closeErrors = append(closeErrors, fmt.Errorf("event bus: %w", err))
		}
	}
	if c.redisStore != nil {
		if err := c.redisStore.Close(); err != nil {
			logger.Warn("failed to close Redis connection", zap.Error(err))
			closeErrors = append(closeErrors, fmt.Errorf("redis store: %w", err))
		}
	}

	return errors.Join(closeErrors...)
}

// setupLogger initializes and configures the logger with proper cleanup.
func setupLogger(cfg *config.Config) (*zap.Logger, error) {
	env := "production"
	if cfg.Observability.Logging.Development {
		env = "development"
	}
	logger, err := observability.InitLogger(env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	go func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", syncErr)
		}
	}()

	return logger.Logger, nil
}

// loadConfiguration loads and validates the application configuration.
func loadConfiguration(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initializeComponents wires the storage, security, dispatch, and
// notification layers described in SPEC_FULL.md, then builds the
// transports on top of them.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*ApplicationComponents, error) {
	store, redisStore, err := initializeStorage(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	bus, err := initializeEventBus(cfg, store, logger)
	if err != nil {
		if redisStore != nil {
			_ = redisStore.Close()
		}
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	f := factory.New(logger)
	reg := policy.DefaultRegistry()
	validator := policy.NewValidator(reg)
	factory.RegisterDefaults(f, validator)
	f.Seal()

	sec := security.New(store, logger, true)

	d := dispatcher.New(store, f, validator, sec, bus, logger)
	d.LocalCSERN = cfg.CSE.ResourceName

	retargeter := requestmanager.NewHTTPRetargeter(10*time.Second, logger)
	rm := requestmanager.New(store, cfg.CSE.SupportedReleaseVersions, retargeter, logger)

	notifyMgr := initializeNotifyManager(cfg, store, logger)
	notifyMgr.AttachToBus(bus)

	announceMgr := initializeAnnounceManager(store, reg, logger)
	bus.Subscribe(announceMgr.HandleEvent)

	metrics := observability.InitMetrics(cfg.Observability.Metrics.Namespace)
	healthChecker := initializeHealthChecker(redisStore, logger)

	httpSrv := httptransport.New(cfg, d, rm, logger)
	httpSrv.SetHealthChecker(healthChecker)

	var mqttSrv *mqtttransport.Server
	if cfg.MQTT.Enabled {
		mqttSrv = mqtttransport.New(cfg, d, rm, logger)
	}

	return &ApplicationComponents{
		store:          store,
		redisStore:     redisStore,
		bus:            bus,
		factory:        f,
		validator:      validator,
		security:       sec,
		dispatcher:     d,
		requestManager: rm,
		notifyMgr:      notifyMgr,
		announceMgr:    announceMgr,
		healthChecker:  healthChecker,
		metrics:        metrics,
		httpServer:     httpSrv,
		mqttServer:     mqttSrv,
	}, nil
}

// initializeStorage builds the Redis-backed Store when cfg.Redis.Addresses
// is configured, falling back to the in-memory Store for single-process
// deployments without a Redis dependency (spec.md §4.1's Store contract
// is satisfied identically by either).
func initializeStorage(cfg *config.Config, logger *zap.Logger) (storage.Store, *storage.RedisStore, error) {
	if len(cfg.Redis.Addresses) == 0 {
		logger.Info("no Redis addresses configured, using in-memory store")
		return storage.NewMemoryStore(), nil, nil
	}

	redisCfg := &storage.RedisConfig{
		Addr:         cfg.Redis.Addresses[0],
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MasterName:   cfg.Redis.MasterName,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	}
	if cfg.Redis.Mode == "sentinel" {
		redisCfg.UseSentinel = true
		redisCfg.SentinelAddrs = cfg.Redis.Addresses
	}

	store := storage.NewRedisStore(redisCfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("redis connectivity check failed: %w", err)
	}
	logger.Info("Redis storage initialized successfully", zap.String("mode", cfg.Redis.Mode), zap.String("addr", redisCfg.Addr))
	return store, store, nil
}

// initializeEventBus wires InProcessBus for single-process deployments,
// or RedisBus (keyed off the same Redis store) for multi-process ones —
// the store's own GetByRI stands in for RedisBus's resolve callback.
func initializeEventBus(cfg *config.Config, store storage.Store, logger *zap.Logger) (eventbus.Bus, error) {
	redisStore, isRedis := store.(*storage.RedisStore)
	if !isRedis {
		return eventbus.NewInProcessBus(5, logger), nil
	}

	bus := eventbus.NewRedisBus(redisStore.Client(), cfg.CSE.CSEID, store.GetByRI, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start Redis event bus: %w", err)
	}
	return bus, nil
}

func initializeNotifyManager(cfg *config.Config, store storage.Store, logger *zap.Logger) *notify.Manager {
	notifierCfg := notify.DefaultNotifierConfig()
	webhookNotifier := notify.NewWebhookNotifier(notifierCfg, logger)

	var tracker notify.DeliveryTracker
	if redisStore, ok := store.(*storage.RedisStore); ok {
		tracker = notify.NewRedisDeliveryTracker(redisStore.Client())
	}

	return notify.New(store, webhookNotifier, tracker, logger)
}

func initializeAnnounceManager(store storage.Store, reg *policy.Registry, logger *zap.Logger) *announce.Manager {
	resolve := func(csi string) (string, error) {
		remote, err := store.GetByCSI(context.Background(), csi)
		if err != nil {
			return "", err
		}
		if poa, ok := remote.Attrs["poa"].([]string); ok && len(poa) > 0 {
			return poa[0], nil
		}
		return "", fmt.Errorf("remote CSE %s has no reachable poa", csi)
	}
	client := announce.NewHTTPRemoteClient(resolve, "CAdmin", nil)
	return announce.New(store, reg, client, logger)
}

func initializeHealthChecker(redisStore *storage.RedisStore, logger *zap.Logger) *observability.HealthChecker {
	healthChecker := observability.NewHealthChecker(Version)
	healthChecker.SetTimeout(5 * time.Second)

	if redisStore != nil {
		healthChecker.RegisterHealthCheck("redis", observability.RedisHealthCheck(redisStore.Ping))
		healthChecker.RegisterReadinessCheck("redis", observability.RedisHealthCheck(redisStore.Ping))
	}

	logger.Info("health checks registered")
	return healthChecker
}

// seedResourceTree runs the boot importer against the configured fixture,
// creating the CSEBase and default ACP the first time the CSE starts
// against an empty store. Subsequent restarts are a no-op (Importer.Import
// skips when csi already resolves).
func seedResourceTree(c *ApplicationComponents, cfg *config.Config, logger *zap.Logger) error {
	fixturePath := cfg.CSE.ImporterFixturePath
	if fixturePath == "" {
		fixturePath = "./config/importer.yaml"
	}

	fixture, err := boot.LoadFixture(fixturePath)
	if err != nil {
		return err
	}

	importer := boot.New(c.store, c.dispatcher, cfg.CSE.AdminOriginator, logger)
	return importer.Import(context.Background(), fixture, cfg.CSE.CSEID)
}

// runServers starts the expiration sweep loop, the optional MQTT binding,
// and finally the HTTP server — which blocks on its own signal-driven
// shutdown loop (internal/transport/http.Server.Start), so no separate
// signal handling is needed here.
func runServers(cfg *config.Config, logger *zap.Logger, c *ApplicationComponents) error {
	sweepCtx, cancel := context.WithCancel(context.Background())
	c.sweepCancel = cancel
	go runExpirationSweep(sweepCtx, cfg, c, logger)

	if c.mqttServer != nil {
		if err := c.mqttServer.Start(); err != nil {
			return fmt.Errorf("failed to start MQTT transport: %w", err)
		}
		logger.Info("MQTT transport started", zap.String("broker", cfg.MQTT.BrokerURL))
	}

	if err := c.httpServer.Start(); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	logger.Info("HTTP server shut down cleanly")
	return nil
}

// runExpirationSweep periodically walks the resource tree under the
// CSEBase collecting resources whose `et` has elapsed and hands them to
// Dispatcher.SweepExpired, the Go rendering of the teacher's background
// cleanup goroutines generalized to spec.md §7's `et`-driven deletion.
func runExpirationSweep(ctx context.Context, cfg *config.Config, c *ApplicationComponents, logger *zap.Logger) {
	interval := cfg.CSE.ExpirationSweepInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cse, err := c.store.GetByCSI(ctx, cfg.CSE.CSEID)
			if err != nil {
				continue
			}
			candidates := collectExpirable(ctx, c.store, cse)
			if n := c.dispatcher.SweepExpired(ctx, candidates); n > 0 {
				logger.Info("expiration sweep removed resources", zap.Int("count", n))
			}
		}
	}
}

// collectExpirable walks the tree rooted at root, returning every
// resource with a non-zero ET as a sweep candidate.
func collectExpirable(ctx context.Context, store storage.Store, root *model.Resource) []*model.Resource {
	var out []*model.Resource
	children, err := store.ChildrenOf(ctx, root.RI, model.TypeUnknown)
	if err != nil {
		return out
	}
	for _, child := range children {
		if child.ET != "" {
			out = append(out, child)
		}
		out = append(out, collectExpirable(ctx, store, child)...)
	}
	return out
}
