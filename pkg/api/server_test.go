package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/identity"
	"github.com/kbase/groups-sub003/pkg/observability"
	"github.com/kbase/groups-sub003/pkg/service"
)

// fakeService embeds the Service interface so each test only implements the
// methods its routes exercise. Calling anything else panics.
type fakeService struct {
	Service
}

type fakeIdentity struct {
	tokens map[identity.Token]core.UserName
}

func (f *fakeIdentity) Validate(ctx context.Context, t identity.Token) (core.UserName, error) {
	if user, ok := f.tokens[t]; ok {
		return user, nil
	}
	return "", &core.AuthenticationError{Msg: "invalid token"}
}

func (f *fakeIdentity) IsValidUser(ctx context.Context, user core.UserName) (bool, error) {
	return true, nil
}

func newTestServer(t *testing.T, svc Service) *Server {
	t.Helper()
	ids := &fakeIdentity{tokens: map[identity.Token]core.UserName{
		"alice-token": "alice",
		"bob-token":   "bob",
	}}
	return NewServer(svc, ids, observability.NewLogger(observability.ErrorLevel, io.Discard), nil)
}

func do(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestRootEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	rec := do(t, srv, "GET", "/", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var info serviceInfo
	decodeBody(t, rec, &info)
	assert.Equal(t, ServiceName, info.ServiceName)
	assert.Equal(t, Version, info.Version)
	assert.False(t, info.ServerTime.IsZero())
}

type memberGroupsService struct {
	fakeService
	user   core.UserName
	groups []core.GroupIDAndName
}

func (f *memberGroupsService) GetMemberGroups(
	ctx context.Context, user core.UserName,
) ([]core.GroupIDAndName, error) {
	f.user = user
	return f.groups, nil
}

func TestAuthentication(t *testing.T) {
	svc := &memberGroupsService{groups: []core.GroupIDAndName{{ID: "g1", Name: "Group One"}}}
	srv := newTestServer(t, svc)

	t.Run("missing token", func(t *testing.T) {
		rec := do(t, srv, "GET", "/member", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := do(t, srv, "GET", "/member", "nope", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := do(t, srv, "GET", "/member", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.UserName("alice"), svc.user)
	})

	t.Run("bearer prefix stripped", func(t *testing.T) {
		rec := do(t, srv, "GET", "/member", "Bearer bob-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.UserName("bob"), svc.user)
	})
}

type failingMemberService struct {
	fakeService
}

func (f *failingMemberService) GetMemberGroups(
	ctx context.Context, user core.UserName,
) ([]core.GroupIDAndName, error) {
	return nil, errors.New("storage timeout")
}

func TestInternalErrorLogsCaller(t *testing.T) {
	var buf bytes.Buffer
	ids := &fakeIdentity{tokens: map[identity.Token]core.UserName{"alice-token": "alice"}}
	srv := NewServer(&failingMemberService{}, ids,
		observability.NewLogger(observability.ErrorLevel, &buf), nil)

	rec := do(t, srv, "GET", "/member", "alice-token", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"user":"alice"`)
	assert.Contains(t, buf.String(), "storage timeout")
}

type createGroupService struct {
	fakeService
	user   core.UserName
	params service.NewGroupParams
	err    error
}

func (f *createGroupService) CreateGroup(
	ctx context.Context, user core.UserName, p service.NewGroupParams,
) (*core.Group, error) {
	f.user = user
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return core.NewGroup(p.ID, p.Name, user, time.Now())
}

func TestCreateGroup(t *testing.T) {
	svc := &createGroupService{}
	srv := newTestServer(t, svc)

	body := createGroupBody{
		Name:              "Research Group",
		IsPrivate:         true,
		PrivateMemberList: true,
		CustomFields:      map[string]string{"dept": "biology"},
	}
	rec := do(t, srv, "POST", "/groups/research-group", "alice-token", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, core.UserName("alice"), svc.user)
	assert.Equal(t, core.GroupID("research-group"), svc.params.ID)
	assert.Equal(t, core.GroupName("Research Group"), svc.params.Name)
	assert.True(t, svc.params.IsPrivate)
	assert.True(t, svc.params.PrivateMemberList)
	assert.Equal(t, map[string]string{"dept": "biology"}, svc.params.CustomFields)

	var g core.Group
	decodeBody(t, rec, &g)
	assert.Equal(t, core.GroupID("research-group"), g.ID)
}

func TestCreateGroupBadInput(t *testing.T) {
	svc := &createGroupService{}
	srv := newTestServer(t, svc)

	t.Run("illegal group id", func(t *testing.T) {
		rec := do(t, srv, "POST", "/groups/Bad_ID", "alice-token", createGroupBody{Name: "n"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		rec := do(t, srv, "POST", "/groups/ok-id", "alice-token", createGroupBody{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate group", func(t *testing.T) {
		svc.err = &core.GroupExistsError{ID: "ok-id"}
		defer func() { svc.err = nil }()
		rec := do(t, srv, "POST", "/groups/ok-id", "alice-token", createGroupBody{Name: "n"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

type getGroupService struct {
	fakeService
	user core.UserName
	err  error
}

func (f *getGroupService) GetGroup(
	ctx context.Context, user core.UserName, id core.GroupID,
) (*core.Group, error) {
	f.user = user
	if f.err != nil {
		return nil, f.err
	}
	return core.NewGroup(id, "Group", "owner", time.Now())
}

func TestGetGroupAnonymous(t *testing.T) {
	svc := &getGroupService{user: "sentinel"}
	srv := newTestServer(t, svc)

	rec := do(t, srv, "GET", "/groups/public-group", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.UserName(""), svc.user)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no such group", &core.NoSuchGroupError{ID: "g"}, http.StatusNotFound},
		{"unauthorized", &core.UnauthorizedError{Msg: "nope"}, http.StatusForbidden},
		{"illegal parameter", &core.IllegalParameterError{Msg: "bad"}, http.StatusBadRequest},
		{"field validation", &core.FieldValidationError{Field: "f", Msg: "bad"}, http.StatusBadRequest},
		{"authority failure", &core.ResourceHandlerError{Type: "workspace"}, http.StatusBadGateway},
		{"unknown error", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &getGroupService{err: tc.err})
			rec := do(t, srv, "GET", "/groups/some-group", "alice-token", nil)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

type updateGroupService struct {
	fakeService
	id     core.GroupID
	update core.GroupUpdate
}

func (f *updateGroupService) UpdateGroup(
	ctx context.Context, user core.UserName, id core.GroupID, update core.GroupUpdate,
) error {
	f.id = id
	f.update = update
	return nil
}

func TestUpdateGroup(t *testing.T) {
	svc := &updateGroupService{}
	srv := newTestServer(t, svc)

	rec := do(t, srv, "PUT", "/groups/my-group", "alice-token", map[string]interface{}{
		"name":          "New Name",
		"is_private":    false,
		"custom_fields": map[string]interface{}{"dept": nil, "title": "lab"},
	})

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, core.GroupID("my-group"), svc.id)
	require.NotNil(t, svc.update.Name)
	assert.Equal(t, core.GroupName("New Name"), *svc.update.Name)
	require.NotNil(t, svc.update.IsPrivate)
	assert.False(t, *svc.update.IsPrivate)
	assert.Nil(t, svc.update.PrivateMemberList)
	assert.Nil(t, svc.update.CustomFields["dept"])
	require.NotNil(t, svc.update.CustomFields["title"])
	assert.Equal(t, "lab", *svc.update.CustomFields["title"])
}

type listRequestsService struct {
	fakeService
	params core.GetRequestsParams
}

func (f *listRequestsService) ListCreatedRequests(
	ctx context.Context, user core.UserName, params core.GetRequestsParams,
) ([]*core.GroupRequest, error) {
	f.params = params
	return []*core.GroupRequest{}, nil
}

func TestListRequestsParams(t *testing.T) {
	svc := &listRequestsService{}
	srv := newTestServer(t, svc)

	t.Run("defaults", func(t *testing.T) {
		rec := do(t, srv, "GET", "/requests/created", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, svc.params.IncludeClosed)
		assert.True(t, svc.params.SortAscending)
		assert.Nil(t, svc.params.ExcludeUpTo)
	})

	t.Run("full query", func(t *testing.T) {
		rec := do(t, srv, "GET",
			"/requests/created?closed&order=desc&excludeupto=1700000000000&resourcetype=workspace&resource=ws1",
			"alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, svc.params.IncludeClosed)
		assert.False(t, svc.params.SortAscending)
		require.NotNil(t, svc.params.ExcludeUpTo)
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), *svc.params.ExcludeUpTo)
		assert.Equal(t, core.ResourceType("workspace"), svc.params.ResourceType)
		assert.Equal(t, core.ResourceID("ws1"), svc.params.ResourceID)
	})

	t.Run("invalid order", func(t *testing.T) {
		rec := do(t, srv, "GET", "/requests/created?order=sideways", "alice-token", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		rec := do(t, srv, "GET", "/requests/created?excludeupto=yesterday", "alice-token", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lone resource filter", func(t *testing.T) {
		rec := do(t, srv, "GET", "/requests/created?resourcetype=workspace", "alice-token", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type closeRequestService struct {
	fakeService
	accepted core.RequestID
	denied   core.RequestID
	canceled core.RequestID
	reason   string
}

func (f *closeRequestService) request(id core.RequestID) *core.GroupRequest {
	r, _ := core.NewGroupRequest(id, "g", "alice", core.RequestTypeRequest,
		core.ResourceTypeUser, core.UserResource("alice"),
		time.Now(), time.Now().Add(time.Hour))
	return r
}

func (f *closeRequestService) AcceptRequest(
	ctx context.Context, user core.UserName, id core.RequestID,
) (*core.GroupRequest, error) {
	f.accepted = id
	return f.request(id), nil
}

func (f *closeRequestService) DenyRequest(
	ctx context.Context, user core.UserName, id core.RequestID, reason string,
) (*core.GroupRequest, error) {
	f.denied = id
	f.reason = reason
	return f.request(id), nil
}

func (f *closeRequestService) CancelRequest(
	ctx context.Context, user core.UserName, id core.RequestID,
) (*core.GroupRequest, error) {
	f.canceled = id
	return f.request(id), nil
}

func TestRequestCloseRoutes(t *testing.T) {
	const id = "11111111-2222-3333-4444-555555555555"
	svc := &closeRequestService{}
	srv := newTestServer(t, svc)

	t.Run("accept", func(t *testing.T) {
		rec := do(t, srv, "PUT", "/requests/id/"+id+"/accept", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.RequestID(id), svc.accepted)
	})

	t.Run("deny with reason", func(t *testing.T) {
		rec := do(t, srv, "PUT", "/requests/id/"+id+"/deny", "alice-token",
			denyRequestBody{Reason: "not a fit"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.RequestID(id), svc.denied)
		assert.Equal(t, "not a fit", svc.reason)
	})

	t.Run("deny without body", func(t *testing.T) {
		rec := do(t, srv, "PUT", "/requests/id/"+id+"/deny", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, svc.reason)
	})

	t.Run("cancel", func(t *testing.T) {
		rec := do(t, srv, "PUT", "/requests/id/"+id+"/cancel", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.RequestID(id), svc.canceled)
	})

	t.Run("malformed request id", func(t *testing.T) {
		rec := do(t, srv, "PUT", "/requests/id/not-a-uuid/accept", "alice-token", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type addResourceService struct {
	fakeService
	req *core.GroupRequest
	t   core.ResourceType
	rid core.ResourceID
}

func (f *addResourceService) AddResource(
	ctx context.Context, user core.UserName, id core.GroupID,
	t core.ResourceType, rid core.ResourceID,
) (*core.GroupRequest, error) {
	f.t = t
	f.rid = rid
	return f.req, nil
}

func TestAddResourceResponses(t *testing.T) {
	svc := &addResourceService{}
	srv := newTestServer(t, svc)

	t.Run("immediate attach", func(t *testing.T) {
		rec := do(t, srv, "POST", "/groups/my-group/resources/workspace/ws1", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]bool
		decodeBody(t, rec, &resp)
		assert.True(t, resp["complete"])
		assert.Equal(t, core.ResourceType("workspace"), svc.t)
		assert.Equal(t, core.ResourceID("ws1"), svc.rid)
	})

	t.Run("request created", func(t *testing.T) {
		req, err := core.NewGroupRequest(core.NewRequestID(), "my-group", "alice",
			core.RequestTypeInvite, "workspace",
			core.NewResourceDescriptor("mod-ws1", "ws1"),
			time.Now(), time.Now().Add(time.Hour))
		require.NoError(t, err)
		svc.req = req
		rec := do(t, srv, "POST", "/groups/my-group/resources/workspace/ws1", "alice-token", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		var got core.GroupRequest
		decodeBody(t, rec, &got)
		assert.Equal(t, req.ID, got.ID)
	})
}

type groupNamesService struct {
	fakeService
	ids []core.GroupID
}

func (f *groupNamesService) GetGroupNames(
	ctx context.Context, ids []core.GroupID,
) ([]core.GroupIDAndName, error) {
	f.ids = ids
	names := make([]core.GroupIDAndName, len(ids))
	for i, id := range ids {
		names[i] = core.GroupIDAndName{ID: id, Name: core.GroupName(id)}
	}
	return names, nil
}

func TestGroupNames(t *testing.T) {
	svc := &groupNamesService{}
	srv := newTestServer(t, svc)

	rec := do(t, srv, "GET", "/names/alpha,beta", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []core.GroupID{"alpha", "beta"}, svc.ids)

	rec = do(t, srv, "GET", "/names/alpha,Bad!", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type hasRequestsService struct {
	fakeService
	laterThan *time.Time
}

func (f *hasRequestsService) GroupHasRequests(
	ctx context.Context, user core.UserName, id core.GroupID, laterThan *time.Time,
) (bool, error) {
	f.laterThan = laterThan
	return true, nil
}

func TestGroupHasRequests(t *testing.T) {
	svc := &hasRequestsService{}
	srv := newTestServer(t, svc)

	rec := do(t, srv, "GET", "/groups/my-group/requests/new?laterthan=1700000000000", "alice-token", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.laterThan)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), *svc.laterThan)
	var resp map[string]bool
	decodeBody(t, rec, &resp)
	assert.True(t, resp["new"])
}

type memberOpsService struct {
	fakeService
	removed  core.UserName
	promoted core.UserName
	demoted  core.UserName
	fields   map[string]*string
}

func (f *memberOpsService) RemoveMember(
	ctx context.Context, caller core.UserName, id core.GroupID, member core.UserName,
) error {
	f.removed = member
	return nil
}

func (f *memberOpsService) PromoteMember(
	ctx context.Context, caller core.UserName, id core.GroupID, member core.UserName,
) error {
	f.promoted = member
	return nil
}

func (f *memberOpsService) DemoteAdmin(
	ctx context.Context, caller core.UserName, id core.GroupID, admin core.UserName,
) error {
	f.demoted = admin
	return nil
}

func (f *memberOpsService) UpdateUserFields(
	ctx context.Context, caller core.UserName, id core.GroupID,
	member core.UserName, fields map[string]*string,
) error {
	f.fields = fields
	return nil
}

func TestMemberRoutes(t *testing.T) {
	svc := &memberOpsService{}
	srv := newTestServer(t, svc)

	rec := do(t, srv, "DELETE", "/groups/g1/members/bob", "alice-token", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, core.UserName("bob"), svc.removed)

	rec = do(t, srv, "PUT", "/groups/g1/members/bob/admin", "alice-token", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, core.UserName("bob"), svc.promoted)

	rec = do(t, srv, "DELETE", "/groups/g1/members/bob/admin", "alice-token", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, core.UserName("bob"), svc.demoted)

	rec = do(t, srv, "PUT", "/groups/g1/members/bob/fields", "alice-token",
		updateUserFieldsBody{CustomFields: map[string]*string{"dept": nil}})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, svc.fields, "dept")
	assert.Nil(t, svc.fields["dept"])
}
