package service

import (
	"context"
	"fmt"

	"github.com/kbase/groups-sub003/pkg/core"
)

// AddResource starts attaching a resource to the group. Who the caller is
// decides the flow:
//   - group administrator and resource administrator: the resource is
//     attached immediately and the other group administrators are notified.
//   - group administrator only: an invitation to the resource's
//     administrators is created.
//   - resource administrator only: a request to the group's administrators
//     is created.
//   - neither: unauthorized.
//
// A nil request with a nil error means the resource was attached directly.
func (s *Service) AddResource(
	ctx context.Context,
	user core.UserName,
	id core.GroupID,
	t core.ResourceType,
	rid core.ResourceID,
) (*core.GroupRequest, error) {
	if t == core.ResourceTypeUser {
		return nil, &core.IllegalParameterError{
			Msg: "users are group members, not attachable resources"}
	}
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	h, err := s.authorities.Handler(t)
	if err != nil {
		return nil, err
	}
	desc, err := h.GetDescriptor(ctx, rid)
	if err != nil {
		return nil, err
	}
	if g.HasResource(t, desc.ID) {
		return nil, &core.ResourceExistsError{Type: t, ID: desc.ID}
	}

	groupAdmin := g.IsAdministrator(user)
	resourceAdmin, err := h.IsAdministrator(ctx, desc.ID, user)
	if err != nil {
		return nil, err
	}
	switch {
	case groupAdmin && resourceAdmin:
		added := s.now()
		res := core.AttachedResource{Descriptor: desc, Added: &added}
		if err := s.store.AddResource(ctx, id, t, res, added); err != nil {
			return nil, err
		}
		s.notifier.AddResource(ctx, user, otherAdministrators(g, user), id, t, desc.ID)
		return nil, nil
	case groupAdmin:
		r, err := s.createRequest(ctx, g, user, core.RequestTypeInvite, t, desc)
		if err != nil {
			return nil, err
		}
		admins, err := h.GetAdministrators(ctx, desc.ID)
		if err != nil {
			s.log.WithError(err).WithField("request", r.ID.String()).
				Warn("resolving resource administrators for notification failed")
		} else {
			s.notifier.Notify(ctx, admins, g, r)
		}
		return r, nil
	case resourceAdmin:
		r, err := s.createRequest(ctx, g, user, core.RequestTypeRequest, t, desc)
		if err != nil {
			return nil, err
		}
		s.notifier.Notify(ctx, g.Administrators(), g, r)
		return r, nil
	}
	return nil, &core.UnauthorizedError{
		Msg: fmt.Sprintf("user %s administrates neither group %s nor resource %s %s",
			user, id, t, desc.ID)}
}

// RemoveResource detaches a resource from the group. A group administrator
// or an administrator of the resource may remove it.
func (s *Service) RemoveResource(
	ctx context.Context,
	user core.UserName,
	id core.GroupID,
	t core.ResourceType,
	rid core.ResourceID,
) error {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if !g.IsAdministrator(user) {
		ok, err := s.isResourceAdministrator(ctx, t, rid, user)
		if err != nil {
			return err
		}
		if !ok {
			return &core.UnauthorizedError{
				Msg: fmt.Sprintf("user %s administrates neither group %s nor resource %s %s",
					user, id, t, rid)}
		}
	}
	return s.store.RemoveResource(ctx, id, t, rid, s.now())
}

// GrantResourcePermission grants the calling group administrator read access
// to the resource targeted by an open addition request, so the request can
// be evaluated before accepting it. Only REQUEST-type resource requests
// qualify.
func (s *Service) GrantResourcePermission(
	ctx context.Context, user core.UserName, id core.RequestID,
) error {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if !r.IsOpen() {
		return &core.ClosedRequestError{ID: id}
	}
	if r.TargetsUser() || r.IsInvite() {
		return &core.IllegalParameterError{
			Msg: fmt.Sprintf("request %s is not a resource addition request", id)}
	}
	g, err := s.store.GetGroup(ctx, r.GroupID)
	if err != nil {
		return err
	}
	if err := ensureGroupAdministrator(g, user); err != nil {
		return err
	}
	h, err := s.authorities.Handler(r.ResourceType)
	if err != nil {
		return err
	}
	return h.SetReadPermission(ctx, r.Resource.ID, user)
}

// otherAdministrators returns the group administrators excluding the user.
func otherAdministrators(g *core.Group, user core.UserName) []core.UserName {
	var out []core.UserName
	for _, a := range g.Administrators() {
		if a != user {
			out = append(out, a)
		}
	}
	return out
}
