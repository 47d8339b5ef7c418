// Package main provides the entry point for the ACL authorization server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/broker-authz/go-core/internal/audit"
	"github.com/broker-authz/go-core/internal/authorizer"
	"github.com/broker-authz/go-core/internal/cache"
	"github.com/broker-authz/go-core/internal/config"
	"github.com/broker-authz/go-core/internal/metrics"
	"github.com/broker-authz/go-core/internal/principal"
	"github.com/broker-authz/go-core/internal/server"
	"github.com/broker-authz/go-core/internal/store"
	"github.com/broker-authz/go-core/internal/store/postgres"
	"github.com/broker-authz/go-core/pkg/types"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML configuration file")
		addr        = flag.String("addr", "", "Listen address (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("acl-server %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logger, err := initLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ACL server",
		zap.String("version", Version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Type),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped successfully")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bindingStore, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer bindingStore.Close()

	decisionCache, err := buildCache(cfg)
	if err != nil {
		return err
	}

	auditLogger, err := audit.NewLogger(&cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	defer auditLogger.Close()

	m := metrics.New("brokeracl")

	superUsers, err := cfg.SuperUsers()
	if err != nil {
		return err
	}

	authzCfg := authorizer.DefaultConfig()
	authzCfg.SuperUsers = superUsers
	authzCfg.StoreTimeout = cfg.Authorizer.StoreTimeout
	authzCfg.CacheEnabled = cfg.Cache.Enabled

	opts := []authorizer.Option{
		authorizer.WithAuditLogger(auditLogger),
		authorizer.WithMetrics(m),
		authorizer.WithLogger(logger),
	}
	if decisionCache != nil {
		opts = append(opts, authorizer.WithCache(decisionCache))
	}

	authz, err := authorizer.New(authzCfg, bindingStore, opts...)
	if err != nil {
		return fmt.Errorf("failed to create authorizer: %w", err)
	}
	defer authz.Close()

	logger.Info("Decision engine initialized",
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Int("superusers", len(superUsers)),
		zap.Uint64("epoch", bindingStore.Epoch()),
	)

	if err := loadBootstrap(ctx, cfg, authz, logger); err != nil {
		return err
	}

	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	srv, err := server.New(srvCfg, authz, bindingStore, resolver, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() { errChan <- srv.Start() }()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func buildStore(cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Type {
	case "postgres":
		s, err := postgres.New(cfg.Store.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(logger), nil
	}
}

func buildCache(cfg config.Config) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	switch cfg.Cache.Type {
	case cache.TypeRedis:
		return cache.NewRedisCache(cfg.RedisCacheConfig())
	case cache.TypeHybrid:
		return cache.NewHybridCache(&cache.HybridConfig{
			L1Capacity: cfg.Cache.Size,
			L1TTL:      cfg.Cache.TTL,
			L2Enabled:  true,
			L2Config:   cfg.RedisCacheConfig(),
		})
	default:
		return cache.NewLRU(cfg.Cache.Size, cfg.Cache.TTL), nil
	}
}

func buildResolver(cfg config.Config) (principal.Resolver, error) {
	fallback := principal.NewDefaultResolver(types.PrincipalTypeUser)

	mappings, err := cfg.ListenerPrincipals()
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return fallback, nil
	}
	return principal.NewListenerResolver(mappings, fallback), nil
}

// loadBootstrap applies the declarative binding directory and, when
// configured, keeps it applied on change. Adds are idempotent, so repeated
// application is safe.
func loadBootstrap(ctx context.Context, cfg config.Config, authz authorizer.Authorizer, logger *zap.Logger) error {
	if cfg.Bootstrap.Path == "" {
		return nil
	}

	loader := config.NewBootstrapLoader(logger)
	bindings, err := loader.LoadDirectory(cfg.Bootstrap.Path)
	if err != nil {
		return fmt.Errorf("failed to load bootstrap bindings: %w", err)
	}

	added, err := authz.AddAcls(ctx, bindings)
	if err != nil {
		return fmt.Errorf("failed to apply bootstrap bindings: %w", err)
	}
	logger.Info("Bootstrap bindings applied",
		zap.String("path", cfg.Bootstrap.Path),
		zap.Int("loaded", len(bindings)),
		zap.Int("added", len(added)),
	)

	if !cfg.Bootstrap.Watch {
		return nil
	}

	apply := func(ctx context.Context, bindings []types.AclBinding) error {
		_, err := authz.AddAcls(ctx, bindings)
		return err
	}
	watcher, err := config.NewBootstrapWatcher(cfg.Bootstrap.Path, loader, apply, logger)
	if err != nil {
		return err
	}
	return watcher.Watch(ctx)
}

// initLogger initializes the zap logger
func initLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
