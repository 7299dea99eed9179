package authority

import (
	"context"
	"fmt"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/identity"
)

// UserHandler is the built-in authority for the "user" resource type.
// User-targeted requests store the user name as both administrative and
// resource ID, which makes request storage uniform across targets: the only
// administrator of a user resource is the user themselves.
type UserHandler struct {
	ids identity.Authority
}

// NewUserHandler creates the user authority backed by the identity
// authority.
func NewUserHandler(ids identity.Authority) *UserHandler {
	return &UserHandler{ids: ids}
}

// IsAdministrator reports whether the user is the resource, since users
// administer only themselves.
func (h *UserHandler) IsAdministrator(ctx context.Context, id core.ResourceID, user core.UserName) (bool, error) {
	return string(id) == string(user), nil
}

// GetAdministratedResources returns the user's own name.
func (h *UserHandler) GetAdministratedResources(ctx context.Context, user core.UserName) ([]core.ResourceAdministrativeID, error) {
	return []core.ResourceAdministrativeID{core.ResourceAdministrativeID(user)}, nil
}

// GetAdministrators returns the user named by the resource ID.
func (h *UserHandler) GetAdministrators(ctx context.Context, id core.ResourceID) ([]core.UserName, error) {
	user, err := h.toUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return []core.UserName{user}, nil
}

// GetResourceInformation reports existence for each user name.
func (h *UserHandler) GetResourceInformation(ctx context.Context, user core.UserName,
	ids []core.ResourceID, level AccessLevel) ([]ResourceInfo, error) {
	result := make([]ResourceInfo, 0, len(ids))
	for _, id := range ids {
		target, err := core.NewUserName(string(id))
		if err != nil {
			result = append(result, ResourceInfo{
				Descriptor: core.UserResource(core.UserName(id)), Exists: false})
			continue
		}
		valid, err := h.ids.IsValidUser(ctx, target)
		if err != nil {
			return nil, &core.ResourceHandlerError{Type: core.ResourceTypeUser, Err: err}
		}
		result = append(result, ResourceInfo{Descriptor: core.UserResource(target), Exists: valid})
	}
	return result, nil
}

// SetReadPermission is a no-op; users are not readable objects.
func (h *UserHandler) SetReadPermission(ctx context.Context, id core.ResourceID, user core.UserName) error {
	return nil
}

// GetDescriptor validates the user exists and returns the user descriptor.
func (h *UserHandler) GetDescriptor(ctx context.Context, id core.ResourceID) (core.ResourceDescriptor, error) {
	user, err := h.toUser(ctx, id)
	if err != nil {
		return core.ResourceDescriptor{}, err
	}
	return core.UserResource(user), nil
}

func (h *UserHandler) toUser(ctx context.Context, id core.ResourceID) (core.UserName, error) {
	user, err := core.NewUserName(string(id))
	if err != nil {
		return "", &core.NoSuchResourceError{Type: core.ResourceTypeUser, ID: id}
	}
	valid, err := h.ids.IsValidUser(ctx, user)
	if err != nil {
		return "", &core.ResourceHandlerError{
			Type: core.ResourceTypeUser,
			Err:  fmt.Errorf("failed to look up user %s: %w", user, err),
		}
	}
	if !valid {
		return "", &core.NoSuchResourceError{Type: core.ResourceTypeUser, ID: id}
	}
	return user, nil
}

var _ Handler = (*UserHandler)(nil)
