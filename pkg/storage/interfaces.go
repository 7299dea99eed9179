package storage

import (
	"context"
	"time"

	"github.com/kbase/groups-sub003/pkg/core"
)

// GroupsStorage is the persistence contract for groups and requests. All
// methods accept a context for cancellation and timeouts. Implementations
// must provide atomic update-if-matches semantics for request closes; the
// lifecycle engine relies on that for its compare-and-swap transitions.
type GroupsStorage interface {
	GroupStore
	RequestStore

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases all connections.
	Close() error
}

// GroupStore holds group persistence operations.
type GroupStore interface {
	// CreateGroup stores a new group. Returns core.GroupExistsError if the
	// ID is taken.
	CreateGroup(ctx context.Context, g *core.Group) error

	// UpdateGroup applies the update and sets the modification time.
	// The modification time is only written if something changed.
	UpdateGroup(ctx context.Context, id core.GroupID, update core.GroupUpdate, mod time.Time) error

	// GetGroup returns the group with all members and resources. Returns
	// core.NoSuchGroupError if absent.
	GetGroup(ctx context.Context, id core.GroupID) (*core.Group, error)

	// GetGroups returns groups matching the parameters, ordered by ID,
	// at most MaxList per call. The user is consulted for role filters
	// and for excluding private groups the user cannot see; empty means
	// anonymous.
	GetGroups(ctx context.Context, params core.GetGroupsParams, user core.UserName) ([]*core.Group, error)

	// GetGroupNames returns ID and name for each given group, in ID
	// order. Unknown IDs cause core.NoSuchGroupError.
	GetGroupNames(ctx context.Context, ids []core.GroupID) ([]core.GroupIDAndName, error)

	// GroupExists reports whether the group exists.
	GroupExists(ctx context.Context, id core.GroupID) (bool, error)

	// GetMemberGroups returns ID and name of every group the user holds
	// any role in, in ID order.
	GetMemberGroups(ctx context.Context, user core.UserName) ([]core.GroupIDAndName, error)

	// GetAdministratedGroups returns the IDs of groups where the user is
	// owner or admin, in ID order.
	GetAdministratedGroups(ctx context.Context, user core.UserName) ([]core.GroupID, error)

	// AddMember adds the user to the group with the given record. Returns
	// core.UserIsMemberError if the user already holds a role.
	AddMember(ctx context.Context, id core.GroupID, member core.GroupUser, mod time.Time) error

	// RemoveMember removes a regular member. Owners and admins must be
	// demoted first; attempting to remove them returns
	// core.NoSuchUserError.
	RemoveMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error

	// PromoteMember changes a regular member's role to admin.
	PromoteMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error

	// DemoteAdmin changes an admin's role to member.
	DemoteAdmin(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error

	// UpdateUserFields updates a member's custom fields. Nil values
	// remove fields. Does not alter the group modification time.
	UpdateUserFields(ctx context.Context, id core.GroupID, user core.UserName, fields map[string]*string) error

	// UpdateLastVisit records the member's last visit to the group.
	// Does not alter the group modification time.
	UpdateLastVisit(ctx context.Context, id core.GroupID, user core.UserName, visit time.Time) error

	// AddResource attaches a resource to the group. Returns
	// core.ResourceExistsError if already attached.
	AddResource(ctx context.Context, id core.GroupID, t core.ResourceType, res core.AttachedResource, mod time.Time) error

	// RemoveResource detaches a resource from the group. Returns
	// core.NoSuchResourceError if not attached.
	RemoveResource(ctx context.Context, id core.GroupID, t core.ResourceType, rid core.ResourceID, mod time.Time) error
}

// RequestStore holds request persistence operations.
type RequestStore interface {
	// StoreRequest stores a new open request. Returns
	// core.RequestExistsError if an equivalent open request exists.
	StoreRequest(ctx context.Context, r *core.GroupRequest) error

	// GetRequest returns the request. Returns core.NoSuchRequestError if
	// absent.
	GetRequest(ctx context.Context, id core.RequestID) (*core.GroupRequest, error)

	// GetRequestsByRequester lists requests created by the user, ordered
	// by modification time, at most MaxList per call.
	GetRequestsByRequester(ctx context.Context, user core.UserName, params core.GetRequestsParams) ([]*core.GroupRequest, error)

	// GetRequestsByTarget lists open-by-default requests that target the
	// user directly or target resources administrated by the user, as
	// described by the administrative IDs per type.
	GetRequestsByTarget(ctx context.Context, user core.UserName,
		adminResources map[core.ResourceType][]core.ResourceAdministrativeID,
		params core.GetRequestsParams) ([]*core.GroupRequest, error)

	// GetRequestsByGroup lists requests against a single group.
	GetRequestsByGroup(ctx context.Context, id core.GroupID, params core.GetRequestsParams) ([]*core.GroupRequest, error)

	// GetRequestsByGroups lists requests against any of the groups.
	GetRequestsByGroups(ctx context.Context, ids []core.GroupID, params core.GetRequestsParams) ([]*core.GroupRequest, error)

	// GroupHasRequest reports whether the group has any open request
	// modified strictly after laterThan. A nil laterThan means any open
	// request at all.
	GroupHasRequest(ctx context.Context, id core.GroupID, laterThan *time.Time) (bool, error)

	// CloseRequest atomically moves an open request to the given terminal
	// status, setting the modification time and clearing the duplicate
	// key. Returns core.ClosedRequestError if the request was not open at
	// write time and core.NoSuchRequestError if it does not exist.
	CloseRequest(ctx context.Context, id core.RequestID, status core.RequestStatus, mod time.Time) error

	// GetExpiredRequests returns IDs of open requests whose expiration
	// date is strictly before now, at most MaxList per call.
	GetExpiredRequests(ctx context.Context, now time.Time) ([]core.RequestID, error)
}

// MaxList is the maximum number of rows any listing method returns.
const MaxList = 100

// Config holds storage backend configuration.
type Config struct {
	// PostgreSQL config. PostgresReplicaURLs is a comma-separated list of
	// read replicas; empty routes reads to the primary.
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// Redis config for the group read cache. Empty RedisURL disables the
	// cache.
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisPoolSize   int
	RedisMaxRetries int

	// Cache config
	CacheEnabled bool
	CacheTTL     time.Duration
	L1CacheSize  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		CacheTTL:         5 * time.Minute,
		L1CacheSize:      1024,
	}
}
