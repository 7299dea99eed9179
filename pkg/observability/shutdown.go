package observability

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager coordinates an orderly stop on SIGINT or SIGTERM. The
// HTTP server drains first, then the registered functions run one at a
// time in registration order, so a background agent can be stopped before
// the storage it uses is closed.
type ShutdownManager struct {
	log     *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

// NewShutdownManager creates a manager for the server. A non-positive
// timeout defaults to 30 seconds.
func NewShutdownManager(log *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{log: log, server: server, timeout: timeout}
}

// RegisterShutdownFunc adds a function to run after the server drains.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until a termination signal arrives, then runs the
// shutdown sequence under the configured timeout.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	sm.log.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()
	return sm.shutdown(ctx)
}

// shutdown drains the server and runs every registered function. A failing
// step is logged and does not stop the later steps.
func (sm *ShutdownManager) shutdown(ctx context.Context) error {
	var errs []error
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.log.WithError(err).Error("server shutdown failed")
			errs = append(errs, err)
		}
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	for i, fn := range funcs {
		if err := fn(ctx); err != nil {
			sm.log.WithError(err).WithField("step", i).Error("shutdown step failed")
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.log.Info("shutdown complete")
	return nil
}
