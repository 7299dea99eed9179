package authority

import (
	"context"

	"github.com/kbase/groups-sub003/pkg/core"
)

// AccessLevel describes how much resource information a caller may see.
type AccessLevel string

const (
	// AccessNone requests only existence information.
	AccessNone AccessLevel = "none"
	// AccessRead requests information visible to readers.
	AccessRead AccessLevel = "read"
	// AccessAdmin requests information visible to administrators.
	AccessAdmin AccessLevel = "admin"
)

// ResourceInfo is what an authority reports about a single resource.
type ResourceInfo struct {
	Descriptor core.ResourceDescriptor `json:"descriptor"`
	// Exists is false when the authority does not know the resource.
	Exists bool `json:"exists"`
	// Fields holds authority-specific metadata, e.g. a workspace name.
	Fields map[string]string `json:"fields,omitempty"`
}

// Handler is the capability contract for one resource type. All methods may
// fail with core.ResourceHandlerError when the backing authority is
// unreachable or answers with an unexpected shape; that failure is distinct
// from a negative answer.
type Handler interface {
	// IsAdministrator reports whether the user administers the resource.
	IsAdministrator(ctx context.Context, id core.ResourceID, user core.UserName) (bool, error)

	// GetAdministratedResources returns the administrative IDs of every
	// resource the user administers.
	GetAdministratedResources(ctx context.Context, user core.UserName) ([]core.ResourceAdministrativeID, error)

	// GetAdministrators returns the administrators of the resource.
	GetAdministrators(ctx context.Context, id core.ResourceID) ([]core.UserName, error)

	// GetResourceInformation describes the given resources as visible to
	// the user at the given access level.
	GetResourceInformation(ctx context.Context, user core.UserName, ids []core.ResourceID,
		level AccessLevel) ([]ResourceInfo, error)

	// SetReadPermission grants the user read access to the resource. The
	// grant is one-way; there is no revocation.
	SetReadPermission(ctx context.Context, id core.ResourceID, user core.UserName) error

	// GetDescriptor resolves a resource ID to its full descriptor,
	// normalizing the ID and supplying the administrative ID. Returns
	// core.NoSuchResourceError for an unknown resource.
	GetDescriptor(ctx context.Context, id core.ResourceID) (core.ResourceDescriptor, error)
}

// Registry binds resource types to their handlers. Bindings are fixed at
// startup; lookups after that are read-only and safe for concurrent use.
type Registry struct {
	handlers map[core.ResourceType]Handler
}

// NewRegistry creates a registry with the given bindings.
func NewRegistry(handlers map[core.ResourceType]Handler) *Registry {
	m := make(map[core.ResourceType]Handler, len(handlers))
	for t, h := range handlers {
		m[t] = h
	}
	return &Registry{handlers: m}
}

// Handler returns the handler for the resource type. Returns
// core.NoSuchResourceTypeError for an unbound type.
func (r *Registry) Handler(t core.ResourceType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, &core.NoSuchResourceTypeError{Type: t}
	}
	return h, nil
}

// Types returns the bound resource types.
func (r *Registry) Types() []core.ResourceType {
	types := make([]core.ResourceType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
