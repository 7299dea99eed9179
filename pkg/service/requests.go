package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbase/groups-sub003/pkg/core"
)

// RequestGroupMembership creates an open join request for the user against
// the group and notifies the group administrators.
func (s *Service) RequestGroupMembership(
	ctx context.Context, user core.UserName, id core.GroupID,
) (*core.GroupRequest, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.IsMember(user) {
		return nil, &core.UserIsMemberError{
			Msg: fmt.Sprintf("user %s is already a member of group %s", user, id)}
	}
	r, err := s.createRequest(ctx, g, user, core.RequestTypeRequest,
		core.ResourceTypeUser, core.UserResource(user))
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, g.Administrators(), g, r)
	return r, nil
}

// InviteUserToGroup creates an open invitation from a group administrator to
// the target user and notifies the target.
func (s *Service) InviteUserToGroup(
	ctx context.Context, caller core.UserName, id core.GroupID, target core.UserName,
) (*core.GroupRequest, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureGroupAdministrator(g, caller); err != nil {
		return nil, err
	}
	ok, err := s.ids.IsValidUser(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("checking user %s: %w", target, err)
	}
	if !ok {
		return nil, &core.NoSuchUserError{Msg: "no such user: " + string(target)}
	}
	if g.IsMember(target) {
		return nil, &core.UserIsMemberError{
			Msg: fmt.Sprintf("user %s is already a member of group %s", target, id)}
	}
	r, err := s.createRequest(ctx, g, caller, core.RequestTypeInvite,
		core.ResourceTypeUser, core.UserResource(target))
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, []core.UserName{target}, g, r)
	return r, nil
}

// GetRequest returns the request together with the actions the user may take
// on it. Only the requester, the target, group administrators and resource
// administrators may view a request.
func (s *Service) GetRequest(
	ctx context.Context, user core.UserName, id core.RequestID,
) (*core.RequestWithActions, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := s.store.GetGroup(ctx, r.GroupID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canViewRequest(ctx, g, r, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &core.UnauthorizedError{
			Msg: fmt.Sprintf("user %s may not view request %s", user, id)}
	}
	actions, err := s.PermittedActions(ctx, user, g, r)
	if err != nil {
		return nil, err
	}
	return &core.RequestWithActions{Request: r, Actions: actions}, nil
}

// ListCreatedRequests lists requests the user created.
func (s *Service) ListCreatedRequests(
	ctx context.Context, user core.UserName, params core.GetRequestsParams,
) ([]*core.GroupRequest, error) {
	return s.store.GetRequestsByRequester(ctx, user, params)
}

// ListTargetedRequests lists requests that target the user directly or
// target resources the user administers, consulting every registered
// resource authority for the user's administrated resources.
func (s *Service) ListTargetedRequests(
	ctx context.Context, user core.UserName, params core.GetRequestsParams,
) ([]*core.GroupRequest, error) {
	admin := map[core.ResourceType][]core.ResourceAdministrativeID{}
	for _, t := range s.authorities.Types() {
		if t == core.ResourceTypeUser {
			continue
		}
		h, err := s.authorities.Handler(t)
		if err != nil {
			return nil, err
		}
		ids, err := h.GetAdministratedResources(ctx, user)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			admin[t] = ids
		}
	}
	return s.store.GetRequestsByTarget(ctx, user, admin, params)
}

// ListGroupRequests lists requests against the group. Group administrators
// only.
func (s *Service) ListGroupRequests(
	ctx context.Context, user core.UserName, id core.GroupID, params core.GetRequestsParams,
) ([]*core.GroupRequest, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureGroupAdministrator(g, user); err != nil {
		return nil, err
	}
	return s.store.GetRequestsByGroup(ctx, id, params)
}

// ListAdministratedGroupsRequests lists requests against every group the
// user administrates.
func (s *Service) ListAdministratedGroupsRequests(
	ctx context.Context, user core.UserName, params core.GetRequestsParams,
) ([]*core.GroupRequest, error) {
	ids, err := s.store.GetAdministratedGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*core.GroupRequest{}, nil
	}
	return s.store.GetRequestsByGroups(ctx, ids, params)
}

// CancelRequest moves an open request to canceled. Only the requester may
// cancel. Any pending outbound notification for the request is revoked.
func (s *Service) CancelRequest(
	ctx context.Context, user core.UserName, id core.RequestID,
) (*core.GroupRequest, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Requester != user {
		return nil, &core.UnauthorizedError{
			Msg: fmt.Sprintf("user %s may not cancel request %s", user, id)}
	}
	if err := s.store.CloseRequest(ctx, id, core.CanceledStatus(), s.now()); err != nil {
		return nil, err
	}
	s.countClosed(core.StatusCanceled)
	s.notifier.Cancel(ctx, id)
	return s.store.GetRequest(ctx, id)
}

// AcceptRequest moves an open request to accepted and applies its side
// effect: user targets join the group, resource targets are attached. The
// side effect is retried safely; a target already present is not an error.
func (s *Service) AcceptRequest(
	ctx context.Context, user core.UserName, id core.RequestID,
) (*core.GroupRequest, error) {
	r, _, err := s.loadClosable(ctx, user, id)
	if err != nil {
		return nil, err
	}
	status, err := core.AcceptedStatus(user)
	if err != nil {
		return nil, err
	}
	mod := s.now()
	if err := s.store.CloseRequest(ctx, id, status, mod); err != nil {
		return nil, err
	}
	s.countClosed(core.StatusAccepted)
	if err := s.applyAccept(ctx, r, mod); err != nil {
		return nil, fmt.Errorf("request %s accepted but applying the change failed: %w", id, err)
	}
	s.notifier.Accept(ctx, s.closeTargets(r, user), r)
	return s.store.GetRequest(ctx, id)
}

// DenyRequest moves an open request to denied with an optional reason.
func (s *Service) DenyRequest(
	ctx context.Context, user core.UserName, id core.RequestID, reason string,
) (*core.GroupRequest, error) {
	r, _, err := s.loadClosable(ctx, user, id)
	if err != nil {
		return nil, err
	}
	status, err := core.DeniedStatus(user, reason)
	if err != nil {
		return nil, err
	}
	if err := s.store.CloseRequest(ctx, id, status, s.now()); err != nil {
		return nil, err
	}
	s.countClosed(core.StatusDenied)
	s.notifier.Deny(ctx, s.closeTargets(r, user), r)
	return s.store.GetRequest(ctx, id)
}

// ExpireRequests closes every open request whose expiration date has passed.
// Requests closed by a racing agent are skipped; other per-request failures
// are logged and do not stop the scan. Returns the number of requests
// expired by this call.
func (s *Service) ExpireRequests(ctx context.Context) (int, error) {
	ids, err := s.store.GetExpiredRequests(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		err := s.store.CloseRequest(ctx, id, core.ExpiredStatus(), s.now())
		switch {
		case err == nil:
			expired++
			s.countClosed(core.StatusExpired)
			s.notifier.Cancel(ctx, id)
		case core.IsClosedRequest(err) || core.IsNoSuchRequest(err):
			s.countCloseRace()
		default:
			s.log.WithError(err).WithField("request", id.String()).
				Error("expiring request failed")
		}
	}
	return expired, nil
}

// createRequest builds and stores an open request with the configured TTL.
func (s *Service) createRequest(
	ctx context.Context,
	g *core.Group,
	requester core.UserName,
	reqType core.RequestType,
	resourceType core.ResourceType,
	resource core.ResourceDescriptor,
) (*core.GroupRequest, error) {
	created := s.now()
	r, err := core.NewGroupRequest(core.NewRequestID(), g.ID, requester, reqType,
		resourceType, resource, created, created.Add(s.requestTTL))
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreRequest(ctx, r); err != nil {
		return nil, err
	}
	s.countCreated(r)
	s.log.WithFields(map[string]interface{}{
		"request": r.ID.String(), "group": g.ID.String(),
		"type": r.Type.String(), "resource_type": r.ResourceType.String(),
	}).Info("request created")
	return r, nil
}

// loadClosable loads the request and its group and verifies the user may
// accept or deny it. A request past its expiration date is reported as
// closed even before the expiration agent has run.
func (s *Service) loadClosable(
	ctx context.Context, user core.UserName, id core.RequestID,
) (*core.GroupRequest, *core.Group, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !r.IsOpen() {
		return nil, nil, &core.ClosedRequestError{ID: id}
	}
	g, err := s.store.GetGroup(ctx, r.GroupID)
	if err != nil {
		return nil, nil, err
	}
	ok, err := s.canCloseRequest(ctx, g, r, user)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, &core.UnauthorizedError{
			Msg: fmt.Sprintf("user %s may not administrate request %s", user, id)}
	}
	if r.IsExpired(s.now()) {
		return nil, nil, &core.ClosedRequestError{ID: id}
	}
	return r, g, nil
}

// applyAccept applies the accepted request's change to the group. Reapplying
// after a partial failure is safe: an already-present target is not an
// error.
func (s *Service) applyAccept(ctx context.Context, r *core.GroupRequest, mod time.Time) error {
	if r.TargetsUser() {
		member := core.GroupUser{
			Name:   core.UserName(r.Resource.ID),
			Role:   core.RoleMember,
			Joined: mod,
		}
		err := s.store.AddMember(ctx, r.GroupID, member, mod)
		var isMember *core.UserIsMemberError
		if err != nil && !errors.As(err, &isMember) {
			return err
		}
		return nil
	}
	added := mod
	res := core.AttachedResource{Descriptor: r.Resource, Added: &added}
	err := s.store.AddResource(ctx, r.GroupID, r.ResourceType, res, mod)
	var exists *core.ResourceExistsError
	if err != nil && !errors.As(err, &exists) {
		return err
	}
	return nil
}

// closeTargets returns who to notify about a close: the requester and, for
// user targets, the target user, minus the user who performed the close.
func (s *Service) closeTargets(r *core.GroupRequest, actor core.UserName) []core.UserName {
	var targets []core.UserName
	if r.Requester != actor {
		targets = append(targets, r.Requester)
	}
	if r.TargetsUser() {
		if u := core.UserName(r.Resource.ID); u != actor && u != r.Requester {
			targets = append(targets, u)
		}
	}
	return targets
}
