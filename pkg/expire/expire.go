// Package expire runs the background agent that closes overdue open
// requests. The agent is safe to run concurrently with other instances; it
// relies on the storage layer's compare-and-swap close, so overlapping runs
// at worst lose races and skip work.
package expire

import (
	"context"
	"time"

	"github.com/kbase/groups-sub003/pkg/observability"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = time.Minute

// Expirer closes overdue open requests and reports how many it closed.
type Expirer interface {
	ExpireRequests(ctx context.Context) (int, error)
}

// Agent periodically sweeps for expired requests.
type Agent struct {
	expirer  Expirer
	interval time.Duration
	timeout  time.Duration
	log      *observability.Logger
	metrics  *observability.Metrics

	stop chan struct{}
	done chan struct{}
}

// Config holds agent settings.
type Config struct {
	Expirer Expirer
	// Interval between sweeps. Defaults to DefaultInterval.
	Interval time.Duration
	// Timeout bounds a single sweep. Defaults to the interval.
	Timeout time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// New creates a stopped agent.
func New(cfg Config) *Agent {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Agent{
		expirer:  cfg.Expirer,
		interval: interval,
		timeout:  timeout,
		log:      log.WithField("component", "expiration-agent"),
		metrics:  cfg.Metrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (a *Agent) Start() {
	go a.run()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (a *Agent) Stop() {
	close(a.stop)
	<-a.done
}

func (a *Agent) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.sweep()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

// RunOnce performs a single sweep, for one-shot invocations.
func (a *Agent) RunOnce(ctx context.Context) error {
	_, err := a.runSweep(ctx)
	return err
}

func (a *Agent) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	start := time.Now()
	expired, err := a.runSweep(ctx)
	if a.metrics != nil {
		a.metrics.ExpirationDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		a.log.WithError(err).Error("expiration sweep failed")
		return
	}
	if expired > 0 {
		a.log.WithField("expired", expired).Info("expired requests")
	}
}

func (a *Agent) runSweep(ctx context.Context) (int, error) {
	expired, err := a.expirer.ExpireRequests(ctx)
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.ExpirationRunsTotal.WithLabelValues(status).Inc()
	}
	return expired, err
}
