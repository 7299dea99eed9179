package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kbase/groups-sub003/pkg/observability"
	"github.com/kbase/groups-sub003/pkg/storage"
)

// Storage is the PostgreSQL implementation of storage.GroupsStorage.
type Storage struct {
	cm *ConnectionManager
}

// NewStorage wraps an already open database connection. Used by tests and
// by Connect.
func NewStorage(db *sql.DB) *Storage {
	return &Storage{cm: &ConnectionManager{primary: db}}
}

// Connect opens the database, runs pending migrations and verifies the
// schema version. A schema mismatch is fatal and returned as an error.
func Connect(ctx context.Context, cfg storage.Config, log *observability.Logger) (*Storage, error) {
	cm, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(cfg.PostgresReplicaURLs),
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, cm.Primary()); err != nil {
		cm.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	if err := CheckSchema(ctx, cm.Primary()); err != nil {
		cm.Close()
		return nil, err
	}

	return &Storage{cm: cm}, nil
}

// HealthCheck pings the database.
func (s *Storage) HealthCheck(ctx context.Context) error {
	return s.cm.HealthCheck(ctx)
}

// Close closes all database connections.
func (s *Storage) Close() error {
	return s.cm.Close()
}

// DB exposes the primary connection for health checks.
func (s *Storage) DB() *sql.DB { return s.cm.Primary() }

func (s *Storage) write() *sql.DB { return s.cm.Primary() }

func (s *Storage) read() *sql.DB { return s.cm.Replica() }

var _ storage.GroupsStorage = (*Storage)(nil)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func marshalFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal custom fields: %w", err)
	}
	return data, nil
}

func unmarshalFields(data []byte) (map[string]string, error) {
	fields := map[string]string{}
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom fields: %w", err)
	}
	return fields, nil
}

// applyFieldUpdates merges an update map into existing fields. Nil values
// remove keys.
func applyFieldUpdates(existing map[string]string, updates map[string]*string) map[string]string {
	if existing == nil {
		existing = map[string]string{}
	}
	for k, v := range updates {
		if v == nil {
			delete(existing, k)
		} else {
			existing[k] = *v
		}
	}
	return existing
}
