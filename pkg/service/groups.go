package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kbase/groups-sub003/pkg/authority"
	"github.com/kbase/groups-sub003/pkg/core"
)

// NewGroupParams describes a group to create.
type NewGroupParams struct {
	ID                core.GroupID
	Name              core.GroupName
	IsPrivate         bool
	PrivateMemberList bool
	CustomFields      map[string]string
}

// CreateGroup creates a group owned by the user. Custom fields are checked
// against the configured validators before anything is stored.
func (s *Service) CreateGroup(
	ctx context.Context, user core.UserName, p NewGroupParams,
) (*core.Group, error) {
	for key, value := range p.CustomFields {
		if err := s.validators.ValidateField(key, value, false); err != nil {
			return nil, err
		}
	}
	g, err := core.NewGroup(p.ID, p.Name, user, s.now())
	if err != nil {
		return nil, err
	}
	g.IsPrivate = p.IsPrivate
	g.PrivateMemberList = p.PrivateMemberList
	if len(p.CustomFields) > 0 {
		g.CustomFields = make(map[string]string, len(p.CustomFields))
		for k, v := range p.CustomFields {
			g.CustomFields[k] = v
		}
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"group": g.ID.String(), "owner": user.String()}).Info("group created")
	return g, nil
}

// UpdateGroup applies the update to the group's mutable metadata. Only group
// administrators may update. A no-op update leaves the modification time
// untouched.
func (s *Service) UpdateGroup(
	ctx context.Context, user core.UserName, id core.GroupID, update core.GroupUpdate,
) error {
	if !update.HasUpdate() {
		return nil
	}
	if err := s.validators.ValidateAll(update.CustomFields, false); err != nil {
		return err
	}
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureGroupAdministrator(g, user); err != nil {
		return err
	}
	return s.store.UpdateGroup(ctx, id, update, s.now())
}

// GetGroup returns the group as visible to the user. Non-members of a
// private group are told the group does not exist. Member-list privacy is
// applied for non-administrators. Attached resources are described by their
// authorities at the caller's access level; resources an authority no longer
// knows are omitted from the view.
func (s *Service) GetGroup(
	ctx context.Context, user core.UserName, id core.GroupID,
) (*core.Group, error) {
	g, err := s.loadVisibleGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	resources, err := s.describeResources(ctx, user, g)
	if err != nil {
		return nil, err
	}
	view := *g.WithoutPrivateFields(user)
	view.Resources = resources
	return &view, nil
}

// describeResources builds the resource view for the group, merging in the
// information each bound authority reports. Types without a bound authority
// keep their bare descriptors.
func (s *Service) describeResources(
	ctx context.Context, user core.UserName, g *core.Group,
) (map[core.ResourceType]map[core.ResourceID]core.AttachedResource, error) {
	level := authority.AccessNone
	if g.IsAdministrator(user) {
		level = authority.AccessAdmin
	} else if g.IsMember(user) {
		level = authority.AccessRead
	}
	out := make(map[core.ResourceType]map[core.ResourceID]core.AttachedResource, len(g.Resources))
	for t, attached := range g.Resources {
		h, err := s.authorities.Handler(t)
		if err != nil {
			bare := make(map[core.ResourceID]core.AttachedResource, len(attached))
			for rid, ar := range attached {
				bare[rid] = ar
			}
			out[t] = bare
			continue
		}
		ids := make([]core.ResourceID, 0, len(attached))
		for rid := range attached {
			ids = append(ids, rid)
		}
		infos, err := h.GetResourceInformation(ctx, user, ids, level)
		if err != nil {
			return nil, err
		}
		described := make(map[core.ResourceID]core.AttachedResource, len(infos))
		for _, info := range infos {
			ar, ok := attached[info.Descriptor.ID]
			if !ok || !info.Exists {
				continue
			}
			ar.Fields = info.Fields
			described[info.Descriptor.ID] = ar
		}
		out[t] = described
	}
	return out, nil
}

// VisitGroup records the member's visit to the group.
func (s *Service) VisitGroup(ctx context.Context, user core.UserName, id core.GroupID) error {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if !g.IsMember(user) {
		return &core.NoSuchUserError{
			Msg: fmt.Sprintf("user %s is not a member of group %s", user, id)}
	}
	return s.store.UpdateLastVisit(ctx, id, user, s.now())
}

// ListGroups returns groups matching the parameters as visible to the user.
// Private groups the user cannot see are excluded by the storage layer.
func (s *Service) ListGroups(
	ctx context.Context, user core.UserName, params core.GetGroupsParams,
) ([]*core.Group, error) {
	groups, err := s.store.GetGroups(ctx, params, user)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Group, len(groups))
	for i, g := range groups {
		out[i] = g.WithoutPrivateFields(user)
	}
	return out, nil
}

// GetGroupNames returns ID and name for each given group.
func (s *Service) GetGroupNames(
	ctx context.Context, ids []core.GroupID,
) ([]core.GroupIDAndName, error) {
	return s.store.GetGroupNames(ctx, ids)
}

// GroupExists reports whether the group exists, regardless of privacy.
func (s *Service) GroupExists(ctx context.Context, id core.GroupID) (bool, error) {
	return s.store.GroupExists(ctx, id)
}

// GetMemberGroups returns ID and name of every group the user belongs to.
func (s *Service) GetMemberGroups(
	ctx context.Context, user core.UserName,
) ([]core.GroupIDAndName, error) {
	return s.store.GetMemberGroups(ctx, user)
}

// GroupHasRequests reports, for group administrators, whether the group has
// open requests, optionally only those modified after laterThan.
func (s *Service) GroupHasRequests(
	ctx context.Context, user core.UserName, id core.GroupID, laterThan *time.Time,
) (bool, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return false, err
	}
	if err := ensureGroupAdministrator(g, user); err != nil {
		return false, err
	}
	return s.store.GroupHasRequest(ctx, id, laterThan)
}

// loadVisibleGroup loads the group and hides private groups from
// non-members by reporting them as nonexistent.
func (s *Service) loadVisibleGroup(
	ctx context.Context, user core.UserName, id core.GroupID,
) (*core.Group, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.IsPrivate && !g.IsMember(user) {
		return nil, &core.NoSuchGroupError{ID: id}
	}
	return g, nil
}
