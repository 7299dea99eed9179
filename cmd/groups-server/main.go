package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/kbase/groups-sub003/pkg/api"
	"github.com/kbase/groups-sub003/pkg/authority"
	"github.com/kbase/groups-sub003/pkg/config"
	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/expire"
	"github.com/kbase/groups-sub003/pkg/fieldvalidation"
	"github.com/kbase/groups-sub003/pkg/identity"
	"github.com/kbase/groups-sub003/pkg/notifications"
	"github.com/kbase/groups-sub003/pkg/observability"
	"github.com/kbase/groups-sub003/pkg/service"
	"github.com/kbase/groups-sub003/pkg/storage"
	"github.com/kbase/groups-sub003/pkg/storage/postgres"
)

// ResourceTypeCatalogMethod is the resource type served by the catalog
// authority.
const ResourceTypeCatalogMethod core.ResourceType = "catalogmethod"

// ResourceTypeWorkspace is the resource type served by the workspace
// authority.
const ResourceTypeWorkspace core.ResourceType = "workspace"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *observability.Logger) error {
	ctx := context.Background()

	pg, err := postgres.Connect(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	var store storage.GroupsStorage = pg
	var redisClient *redis.Client
	if cfg.Storage.CacheEnabled {
		cached, err := postgres.NewCachedStorage(pg, cfg.Storage)
		if err != nil {
			pg.Close()
			return fmt.Errorf("failed to set up cache: %w", err)
		}
		store = cached
		redisClient = cached.RedisClient()
		log.Info("group read cache enabled")
	}

	ids, err := identity.NewClient(identity.ClientConfig{
		BaseURL:   cfg.Auth.URL,
		Timeout:   cfg.Auth.Timeout,
		CacheTTL:  cfg.Auth.CacheTTL,
		CacheSize: cfg.Auth.CacheSize,
	})
	if err != nil {
		return err
	}

	registry, err := buildAuthorities(cfg, ids, log)
	if err != nil {
		return err
	}

	var notifier notifications.Notifier
	if cfg.Feeds.URL != "" {
		notifier, err = notifications.NewFeedsNotifier(notifications.FeedsConfig{
			BaseURL: cfg.Feeds.URL,
			Token:   cfg.Feeds.Token,
			Timeout: cfg.Feeds.Timeout,
		}, log)
		if err != nil {
			return err
		}
	} else {
		log.Warn("no feeds service configured, notifications are log-only")
		notifier = notifications.NewLoggingNotifier(log)
	}

	validators, err := fieldvalidation.LoadRegistry(cfg.FieldConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load field validators: %w", err)
	}

	var metrics *observability.Metrics
	var promRegistry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		promRegistry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(promRegistry)
	}

	svc, err := service.New(service.Config{
		Storage:     store,
		Authorities: registry,
		Identity:    ids,
		Notifier:    notifier,
		Validators:  validators,
		Logger:      log,
		Metrics:     metrics,
		RequestTTL:  cfg.Requests.TTL,
	})
	if err != nil {
		return err
	}

	apiServer := api.NewServer(svc, ids, log, metrics)
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux,
		observability.NewHealthChecker(api.Version, pg.DB(), redisClient))
	if promRegistry != nil {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	var agent *expire.Agent
	if cfg.Requests.ExpireEnabled {
		agent = expire.New(expire.Config{
			Expirer:  svc,
			Interval: cfg.Requests.ExpireInterval,
			Logger:   log,
			Metrics:  metrics,
		})
		agent.Start()
		log.WithField("interval", cfg.Requests.ExpireInterval.String()).
			Info("expiration agent started")
	}

	var g errgroup.Group
	g.Go(func() error {
		log.WithField("addr", httpServer.Addr).Info("groups service listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		manager := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
		manager.RegisterShutdownFunc(func(ctx context.Context) error {
			return healthServer.Shutdown(ctx)
		})
		if agent != nil {
			manager.RegisterShutdownFunc(func(ctx context.Context) error {
				agent.Stop()
				return nil
			})
		}
		manager.RegisterShutdownFunc(func(ctx context.Context) error {
			return store.Close()
		})
		return manager.WaitForShutdown()
	})
	return g.Wait()
}

// buildAuthorities binds a handler per configured resource type. The user
// type is always bound; external types are bound only when an endpoint is
// configured.
func buildAuthorities(
	cfg *config.Config, ids identity.Authority, log *observability.Logger,
) (*authority.Registry, error) {
	handlers := map[core.ResourceType]authority.Handler{
		core.ResourceTypeUser: authority.NewUserHandler(ids),
	}
	if cfg.Authorities.WorkspaceURL != "" {
		h, err := authority.NewHTTPHandler(authority.HTTPHandlerConfig{
			ResourceType: ResourceTypeWorkspace,
			BaseURL:      cfg.Authorities.WorkspaceURL,
			Token:        cfg.Authorities.WorkspaceToken,
			Timeout:      cfg.Authorities.Timeout,
		})
		if err != nil {
			return nil, err
		}
		handlers[ResourceTypeWorkspace] = h
	}
	if cfg.Authorities.CatalogURL != "" {
		h, err := authority.NewHTTPHandler(authority.HTTPHandlerConfig{
			ResourceType: ResourceTypeCatalogMethod,
			BaseURL:      cfg.Authorities.CatalogURL,
			Token:        cfg.Authorities.CatalogToken,
			Timeout:      cfg.Authorities.Timeout,
		})
		if err != nil {
			return nil, err
		}
		handlers[ResourceTypeCatalogMethod] = h
	}
	types := make([]string, 0, len(handlers))
	for t := range handlers {
		types = append(types, string(t))
	}
	log.WithField("resource_types", types).Info("resource authorities bound")
	return authority.NewRegistry(handlers), nil
}
