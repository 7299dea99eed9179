package api

import (
	"context"
	"time"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/service"
)

// Service is the surface of the groups service the HTTP layer depends on.
// Implemented by *service.Service; tests substitute fakes.
type Service interface {
	CreateGroup(ctx context.Context, user core.UserName, p service.NewGroupParams) (*core.Group, error)
	UpdateGroup(ctx context.Context, user core.UserName, id core.GroupID, update core.GroupUpdate) error
	GetGroup(ctx context.Context, user core.UserName, id core.GroupID) (*core.Group, error)
	VisitGroup(ctx context.Context, user core.UserName, id core.GroupID) error
	ListGroups(ctx context.Context, user core.UserName, params core.GetGroupsParams) ([]*core.Group, error)
	GetGroupNames(ctx context.Context, ids []core.GroupID) ([]core.GroupIDAndName, error)
	GroupExists(ctx context.Context, id core.GroupID) (bool, error)
	GetMemberGroups(ctx context.Context, user core.UserName) ([]core.GroupIDAndName, error)
	GroupHasRequests(ctx context.Context, user core.UserName, id core.GroupID, laterThan *time.Time) (bool, error)

	RemoveMember(ctx context.Context, caller core.UserName, id core.GroupID, member core.UserName) error
	PromoteMember(ctx context.Context, caller core.UserName, id core.GroupID, member core.UserName) error
	DemoteAdmin(ctx context.Context, caller core.UserName, id core.GroupID, admin core.UserName) error
	UpdateUserFields(ctx context.Context, caller core.UserName, id core.GroupID, member core.UserName, fields map[string]*string) error

	RequestGroupMembership(ctx context.Context, user core.UserName, id core.GroupID) (*core.GroupRequest, error)
	InviteUserToGroup(ctx context.Context, caller core.UserName, id core.GroupID, target core.UserName) (*core.GroupRequest, error)
	GetRequest(ctx context.Context, user core.UserName, id core.RequestID) (*core.RequestWithActions, error)
	ListCreatedRequests(ctx context.Context, user core.UserName, params core.GetRequestsParams) ([]*core.GroupRequest, error)
	ListTargetedRequests(ctx context.Context, user core.UserName, params core.GetRequestsParams) ([]*core.GroupRequest, error)
	ListGroupRequests(ctx context.Context, user core.UserName, id core.GroupID, params core.GetRequestsParams) ([]*core.GroupRequest, error)
	ListAdministratedGroupsRequests(ctx context.Context, user core.UserName, params core.GetRequestsParams) ([]*core.GroupRequest, error)
	CancelRequest(ctx context.Context, user core.UserName, id core.RequestID) (*core.GroupRequest, error)
	AcceptRequest(ctx context.Context, user core.UserName, id core.RequestID) (*core.GroupRequest, error)
	DenyRequest(ctx context.Context, user core.UserName, id core.RequestID, reason string) (*core.GroupRequest, error)

	AddResource(ctx context.Context, user core.UserName, id core.GroupID, t core.ResourceType, rid core.ResourceID) (*core.GroupRequest, error)
	RemoveResource(ctx context.Context, user core.UserName, id core.GroupID, t core.ResourceType, rid core.ResourceID) error
	GrantResourcePermission(ctx context.Context, user core.UserName, id core.RequestID) error
}

var _ Service = (*service.Service)(nil)

// createGroupBody is the request body for group creation.
type createGroupBody struct {
	Name              string            `json:"name"`
	IsPrivate         bool              `json:"is_private"`
	PrivateMemberList bool              `json:"private_member_list"`
	CustomFields      map[string]string `json:"custom_fields,omitempty"`
}

// updateGroupBody is the request body for group updates. Absent fields are
// left unchanged; a null custom field value removes the field.
type updateGroupBody struct {
	Name              *string            `json:"name,omitempty"`
	IsPrivate         *bool              `json:"is_private,omitempty"`
	PrivateMemberList *bool              `json:"private_member_list,omitempty"`
	CustomFields      map[string]*string `json:"custom_fields,omitempty"`
}

// updateUserFieldsBody is the request body for per-member field updates.
type updateUserFieldsBody struct {
	CustomFields map[string]*string `json:"custom_fields"`
}

// denyRequestBody carries the optional denial reason.
type denyRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

// serviceInfo is the root endpoint response.
type serviceInfo struct {
	ServiceName string    `json:"servname"`
	Version     string    `json:"version"`
	ServerTime  time.Time `json:"servertime"`
}
