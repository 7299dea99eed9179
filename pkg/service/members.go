package service

import (
	"context"
	"fmt"

	"github.com/kbase/groups-sub003/pkg/core"
)

// RemoveMember removes a regular member from the group. Members may remove
// themselves; group administrators may remove any regular member. Owners and
// admins must be demoted before removal.
func (s *Service) RemoveMember(
	ctx context.Context, caller core.UserName, id core.GroupID, member core.UserName,
) error {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if caller != member {
		if err := ensureGroupAdministrator(g, caller); err != nil {
			return err
		}
	}
	if r := g.RoleOf(member); r == core.RoleOwner || r == core.RoleAdmin {
		return &core.NoSuchUserError{
			Msg: fmt.Sprintf("user %s is not a standard member of group %s", member, id)}
	}
	return s.store.RemoveMember(ctx, id, member, s.now())
}

// PromoteMember changes a regular member's role to admin. Only the group
// owner may promote.
func (s *Service) PromoteMember(
	ctx context.Context, caller core.UserName, id core.GroupID, member core.UserName,
) error {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureGroupOwner(g, caller); err != nil {
		return err
	}
	return s.store.PromoteMember(ctx, id, member, s.now())
}

// DemoteAdmin changes an admin's role to member. Only the group owner may
// demote.
func (s *Service) DemoteAdmin(
	ctx context.Context, caller core.UserName, id core.GroupID, admin core.UserName,
) error {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureGroupOwner(g, caller); err != nil {
		return err
	}
	return s.store.DemoteAdmin(ctx, id, admin, s.now())
}

// UpdateUserFields updates a member's per-member custom fields. The member
// themself or a group administrator may update; values are checked against
// the user-field validator namespace. Nil values remove fields.
func (s *Service) UpdateUserFields(
	ctx context.Context,
	caller core.UserName,
	id core.GroupID,
	member core.UserName,
	fields map[string]*string,
) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.validators.ValidateAll(fields, true); err != nil {
		return err
	}
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if caller != member {
		if err := ensureGroupAdministrator(g, caller); err != nil {
			return err
		}
	}
	if !g.IsMember(member) {
		return &core.NoSuchUserError{
			Msg: fmt.Sprintf("user %s is not a member of group %s", member, id)}
	}
	return s.store.UpdateUserFields(ctx, id, member, fields)
}
