package core

import (
	"fmt"
	"sort"
	"time"
)

// Role is a user's role within a group. Every member holds exactly one role,
// so owner, admin and member sets are disjoint by construction.
type Role string

const (
	// RoleNone means the user holds no role in the group.
	RoleNone Role = "none"
	// RoleMember is a regular group member.
	RoleMember Role = "member"
	// RoleAdmin may administrate the group but not change its owner.
	RoleAdmin Role = "admin"
	// RoleOwner is the single owning user of the group.
	RoleOwner Role = "owner"
)

// ParseRole returns the role for its string form.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMember, RoleAdmin, RoleOwner:
		return Role(s), nil
	}
	return RoleNone, &IllegalParameterError{Msg: "invalid role: " + s}
}

func (r Role) String() string { return string(r) }

// GroupUser is a user's record within a group: their role, when they joined,
// their last visit if any, and per-member custom fields.
type GroupUser struct {
	Name         UserName          `json:"name"`
	Role         Role              `json:"role"`
	Joined       time.Time         `json:"joined"`
	LastVisit    *time.Time        `json:"last_visit,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// AttachedResource is a resource association held by a group. Added is nil
// for resources attached before join dates were recorded. Fields holds
// information reported by the resource authority at read time, such as a
// workspace name; it is never stored.
type AttachedResource struct {
	Descriptor ResourceDescriptor `json:"descriptor"`
	Added      *time.Time         `json:"added,omitempty"`
	Fields     map[string]string  `json:"fields,omitempty"`
}

// Group is a named collection of users with roles and attached external
// resources. The group stores only resource associations, never resource
// content.
type Group struct {
	ID                GroupID                                 `json:"id"`
	Name              GroupName                               `json:"name"`
	Owner             UserName                                `json:"owner"`
	IsPrivate         bool                                    `json:"is_private"`
	PrivateMemberList bool                                    `json:"private_member_list"`
	Members           map[UserName]GroupUser                  `json:"members"`
	Resources         map[ResourceType]map[ResourceID]AttachedResource `json:"resources,omitempty"`
	CustomFields      map[string]string                       `json:"custom_fields,omitempty"`
	CreatedAt         time.Time                               `json:"created_at"`
	ModifiedAt        time.Time                               `json:"modified_at"`
}

// NewGroup creates a group with the given owner. The owner is recorded as a
// member with the owner role and the creation time as join date.
func NewGroup(id GroupID, name GroupName, owner UserName, created time.Time) (*Group, error) {
	if id == "" {
		return nil, &MissingParameterError{Param: "group id"}
	}
	if name == "" {
		return nil, &MissingParameterError{Param: "group name"}
	}
	if owner == "" {
		return nil, &MissingParameterError{Param: "owner"}
	}
	return &Group{
		ID:    id,
		Name:  name,
		Owner: owner,
		Members: map[UserName]GroupUser{
			owner: {Name: owner, Role: RoleOwner, Joined: created},
		},
		Resources:  map[ResourceType]map[ResourceID]AttachedResource{},
		CreatedAt:  created,
		ModifiedAt: created,
	}, nil
}

// RoleOf returns the user's role in the group, or RoleNone.
func (g *Group) RoleOf(user UserName) Role {
	if m, ok := g.Members[user]; ok {
		return m.Role
	}
	return RoleNone
}

// IsMember reports whether the user holds any role in the group.
func (g *Group) IsMember(user UserName) bool {
	return g.RoleOf(user) != RoleNone
}

// IsAdministrator reports whether the user is the group owner or an admin.
func (g *Group) IsAdministrator(user UserName) bool {
	r := g.RoleOf(user)
	return r == RoleOwner || r == RoleAdmin
}

// Administrators returns the owner and admins, sorted by name.
func (g *Group) Administrators() []UserName {
	var admins []UserName
	for name, m := range g.Members {
		if m.Role == RoleOwner || m.Role == RoleAdmin {
			admins = append(admins, name)
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i] < admins[j] })
	return admins
}

// MemberNames returns all member names regardless of role, sorted.
func (g *Group) MemberNames() []UserName {
	names := make([]UserName, 0, len(g.Members))
	for name := range g.Members {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// HasResource reports whether the resource is attached to the group.
func (g *Group) HasResource(t ResourceType, id ResourceID) bool {
	res, ok := g.Resources[t]
	if !ok {
		return false
	}
	_, ok = res[id]
	return ok
}

// Resource returns the attached resource record.
func (g *Group) Resource(t ResourceType, id ResourceID) (AttachedResource, error) {
	if res, ok := g.Resources[t]; ok {
		if r, ok := res[id]; ok {
			return r, nil
		}
	}
	return AttachedResource{}, &NoSuchResourceError{Type: t, ID: id}
}

// WithoutPrivateFields returns a redacted copy of the group for a viewer
// without sufficient access. Non-members of a private group see nothing and
// callers should treat the group as nonexistent; this method handles the
// member-list privacy case, hiding other members from non-administrators
// when PrivateMemberList is set.
func (g *Group) WithoutPrivateFields(viewer UserName) *Group {
	if !g.PrivateMemberList || g.IsAdministrator(viewer) {
		return g
	}
	cp := *g
	cp.Members = map[UserName]GroupUser{}
	for name, m := range g.Members {
		if m.Role == RoleOwner || m.Role == RoleAdmin || name == viewer {
			cp.Members[name] = m
		}
	}
	return &cp
}

// String implements fmt.Stringer for log output.
func (g *Group) String() string {
	return fmt.Sprintf("group %s (%d members)", g.ID, len(g.Members))
}
