package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/kbase/groups-sub003/pkg/authority"
	"github.com/kbase/groups-sub003/pkg/config"
	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/expire"
	"github.com/kbase/groups-sub003/pkg/fieldvalidation"
	"github.com/kbase/groups-sub003/pkg/identity"
	"github.com/kbase/groups-sub003/pkg/notifications"
	"github.com/kbase/groups-sub003/pkg/observability"
	"github.com/kbase/groups-sub003/pkg/service"
	"github.com/kbase/groups-sub003/pkg/storage/postgres"
)

// groups-expirer is a standalone expiration agent for deployments that run
// the server with GROUPS_EXPIRE_ENABLED=false and sweep from a single
// dedicated process instead.

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if cfg.Observability.LogLevel == observability.DebugLevel {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("expirer exited with error")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()
	svcLog := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	store, err := postgres.Connect(ctx, cfg.Storage, svcLog)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer store.Close()

	ids, err := identity.NewClient(identity.ClientConfig{
		BaseURL:   cfg.Auth.URL,
		Timeout:   cfg.Auth.Timeout,
		CacheTTL:  cfg.Auth.CacheTTL,
		CacheSize: cfg.Auth.CacheSize,
	})
	if err != nil {
		return err
	}

	var notifier notifications.Notifier
	if cfg.Feeds.URL != "" {
		notifier, err = notifications.NewFeedsNotifier(notifications.FeedsConfig{
			BaseURL: cfg.Feeds.URL,
			Token:   cfg.Feeds.Token,
			Timeout: cfg.Feeds.Timeout,
		}, svcLog)
		if err != nil {
			return err
		}
	} else {
		notifier = notifications.NewLoggingNotifier(svcLog)
	}

	validators, err := fieldvalidation.LoadRegistry(cfg.FieldConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load field validators: %w", err)
	}

	// Expiration never consults external authorities, so only the built-in
	// user type is bound here.
	svc, err := service.New(service.Config{
		Storage: store,
		Authorities: authority.NewRegistry(map[core.ResourceType]authority.Handler{
			core.ResourceTypeUser: authority.NewUserHandler(ids),
		}),
		Identity:   ids,
		Notifier:   notifier,
		Validators: validators,
		Logger:     svcLog,
		RequestTTL: cfg.Requests.TTL,
	})
	if err != nil {
		return err
	}

	agent := expire.New(expire.Config{
		Expirer:  svc,
		Interval: cfg.Requests.ExpireInterval,
		Logger:   svcLog,
	})

	scheduler := cron.New(cron.WithLogger(cronLogger{log: log}))
	spec := fmt.Sprintf("@every %s", cfg.Requests.ExpireInterval)
	_, err = scheduler.AddFunc(spec, func() {
		defer observability.RecoverPanic(svcLog, "expiration sweep")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Requests.ExpireInterval)
		defer cancel()
		if err := agent.RunOnce(ctx); err != nil {
			log.WithError(err).Error("expiration sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	scheduler.Start()
	log.WithField("schedule", spec).Info("expiration agent started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("shutting down")

	<-scheduler.Stop().Done()
	return nil
}

// cronLogger adapts logrus to the cron logger interface.
type cronLogger struct {
	log *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(cronFields(keysAndValues)).Error(msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
