package service

import (
	"time"

	"github.com/kbase/groups-sub003/pkg/authority"
	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/fieldvalidation"
	"github.com/kbase/groups-sub003/pkg/identity"
	"github.com/kbase/groups-sub003/pkg/notifications"
	"github.com/kbase/groups-sub003/pkg/observability"
	"github.com/kbase/groups-sub003/pkg/storage"
)

// DefaultRequestTTL is how long a new request stays open before it becomes
// eligible for expiration.
const DefaultRequestTTL = 14 * 24 * time.Hour

// Service is the lifecycle engine. It exclusively owns group and request
// mutation; the API layer translates HTTP to these calls and nothing else.
type Service struct {
	store       storage.GroupsStorage
	authorities *authority.Registry
	ids         identity.Authority
	notifier    notifications.Notifier
	validators  *fieldvalidation.Registry
	log         *observability.Logger
	metrics     *observability.Metrics

	clock      func() time.Time
	requestTTL time.Duration
}

// Config holds the service collaborators and tunables.
type Config struct {
	Storage     storage.GroupsStorage
	Authorities *authority.Registry
	Identity    identity.Authority
	Notifier    notifications.Notifier
	Validators  *fieldvalidation.Registry
	Logger      *observability.Logger
	Metrics     *observability.Metrics

	// RequestTTL overrides DefaultRequestTTL when positive.
	RequestTTL time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// New creates the lifecycle engine.
func New(cfg Config) (*Service, error) {
	if cfg.Storage == nil {
		return nil, &core.MissingParameterError{Param: "storage"}
	}
	if cfg.Authorities == nil {
		return nil, &core.MissingParameterError{Param: "authority registry"}
	}
	if cfg.Identity == nil {
		return nil, &core.MissingParameterError{Param: "identity authority"}
	}
	if cfg.Notifier == nil {
		return nil, &core.MissingParameterError{Param: "notifier"}
	}
	if cfg.Validators == nil {
		return nil, &core.MissingParameterError{Param: "field validators"}
	}
	if cfg.Logger == nil {
		return nil, &core.MissingParameterError{Param: "logger"}
	}

	ttl := cfg.RequestTTL
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		store:       cfg.Storage,
		authorities: cfg.Authorities,
		ids:         cfg.Identity,
		notifier:    cfg.Notifier,
		validators:  cfg.Validators,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		clock:       clock,
		requestTTL:  ttl,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

func (s *Service) countCreated(r *core.GroupRequest) {
	if s.metrics != nil {
		s.metrics.RequestsCreatedTotal.
			WithLabelValues(string(r.Type), string(r.ResourceType)).Inc()
	}
}

func (s *Service) countClosed(status core.StatusType) {
	if s.metrics != nil {
		s.metrics.RequestsClosedTotal.WithLabelValues(string(status)).Inc()
	}
}

func (s *Service) countCloseRace() {
	if s.metrics != nil {
		s.metrics.RequestCloseRaces.Inc()
	}
}
