package service

import (
	"context"

	"github.com/kbase/groups-sub003/pkg/core"
)

// isResourceAdministrator asks the authority for the request's resource type
// whether the user administers the resource. An unreachable authority
// surfaces as a core.ResourceHandlerError, never as a negative answer.
func (s *Service) isResourceAdministrator(
	ctx context.Context,
	t core.ResourceType,
	id core.ResourceID,
	user core.UserName,
) (bool, error) {
	h, err := s.authorities.Handler(t)
	if err != nil {
		return false, err
	}
	return h.IsAdministrator(ctx, id, user)
}

// canCloseRequest reports whether the user may accept or deny the request.
// Group administrators always qualify. For resource targets the external
// resource's administrators qualify as well, and for user invitations the
// invited user may act on their own behalf.
func (s *Service) canCloseRequest(
	ctx context.Context,
	g *core.Group,
	r *core.GroupRequest,
	user core.UserName,
) (bool, error) {
	if g.IsAdministrator(user) {
		return true, nil
	}
	if invited, ok := r.InvitedUser(); ok && invited == user {
		return true, nil
	}
	if !r.TargetsUser() {
		return s.isResourceAdministrator(ctx, r.ResourceType, r.Resource.ID, user)
	}
	return false, nil
}

// canViewRequest reports whether the user may see the request at all: the
// requester, anyone who could close it, and for user targets the target user.
func (s *Service) canViewRequest(
	ctx context.Context,
	g *core.Group,
	r *core.GroupRequest,
	user core.UserName,
) (bool, error) {
	if r.Requester == user {
		return true, nil
	}
	if r.TargetsUser() && core.UserName(r.Resource.ID) == user {
		return true, nil
	}
	return s.canCloseRequest(ctx, g, r, user)
}

// PermittedActions computes the actions the user may invoke on the request
// right now. The set is derived on demand and never stored. A request past
// its expiration date cannot be accepted or denied even before the
// expiration agent closes it, and expiring is never user-invocable.
func (s *Service) PermittedActions(
	ctx context.Context,
	user core.UserName,
	g *core.Group,
	r *core.GroupRequest,
) ([]core.UserAction, error) {
	actions := []core.UserAction{}
	if !r.IsOpen() {
		return actions, nil
	}
	if r.Requester == user {
		actions = append(actions, core.ActionCancel)
	}
	if r.IsExpired(s.now()) {
		return actions, nil
	}
	ok, err := s.canCloseRequest(ctx, g, r, user)
	if err != nil {
		return nil, err
	}
	if ok {
		actions = append(actions, core.ActionAccept, core.ActionDeny)
	}
	return actions, nil
}

// ensureGroupAdministrator returns an UnauthorizedError unless the user is
// the group owner or an admin.
func ensureGroupAdministrator(g *core.Group, user core.UserName) error {
	if !g.IsAdministrator(user) {
		return &core.UnauthorizedError{
			Msg: string(user) + " is not an administrator of group " + string(g.ID)}
	}
	return nil
}

// ensureGroupOwner returns an UnauthorizedError unless the user owns the
// group.
func ensureGroupOwner(g *core.Group, user core.UserName) error {
	if g.Owner != user {
		return &core.UnauthorizedError{
			Msg: string(user) + " is not the owner of group " + string(g.ID)}
	}
	return nil
}
