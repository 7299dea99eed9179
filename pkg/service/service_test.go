package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kbase/groups-sub003/pkg/authority"
	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/fieldvalidation"
	"github.com/kbase/groups-sub003/pkg/identity"
	"github.com/kbase/groups-sub003/pkg/observability"
)

// fakeStore is an in-memory GroupsStorage honoring the same error contract
// as the Postgres implementation, including the open-request dedup key.
type fakeStore struct {
	mu       sync.Mutex
	groups   map[core.GroupID]*core.Group
	requests map[core.RequestID]*core.GroupRequest
	open     map[string]core.RequestID

	lastTargetQuery map[core.ResourceType][]core.ResourceAdministrativeID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:   map[core.GroupID]*core.Group{},
		requests: map[core.RequestID]*core.GroupRequest{},
		open:     map[string]core.RequestID{},
	}
}

func (f *fakeStore) CreateGroup(ctx context.Context, g *core.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[g.ID]; ok {
		return &core.GroupExistsError{ID: g.ID}
	}
	f.groups[g.ID] = g
	return nil
}

func (f *fakeStore) UpdateGroup(ctx context.Context, id core.GroupID, u core.GroupUpdate, mod time.Time) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.IsPrivate != nil {
		g.IsPrivate = *u.IsPrivate
	}
	if u.PrivateMemberList != nil {
		g.PrivateMemberList = *u.PrivateMemberList
	}
	for k, v := range u.CustomFields {
		if v == nil {
			delete(g.CustomFields, k)
		} else {
			if g.CustomFields == nil {
				g.CustomFields = map[string]string{}
			}
			g.CustomFields[k] = *v
		}
	}
	g.ModifiedAt = mod
	return nil
}

func (f *fakeStore) GetGroup(ctx context.Context, id core.GroupID) (*core.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return nil, &core.NoSuchGroupError{ID: id}
	}
	return g, nil
}

func (f *fakeStore) GetGroups(ctx context.Context, params core.GetGroupsParams, user core.UserName) ([]*core.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*core.Group
	for _, g := range f.groups {
		if g.IsPrivate && !g.IsMember(user) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) GetGroupNames(ctx context.Context, ids []core.GroupID) ([]core.GroupIDAndName, error) {
	var out []core.GroupIDAndName
	for _, id := range ids {
		g, err := f.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, core.GroupIDAndName{ID: g.ID, Name: g.Name})
	}
	return out, nil
}

func (f *fakeStore) GroupExists(ctx context.Context, id core.GroupID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[id]
	return ok, nil
}

func (f *fakeStore) GetMemberGroups(ctx context.Context, user core.UserName) ([]core.GroupIDAndName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.GroupIDAndName
	for _, g := range f.groups {
		if g.IsMember(user) {
			out = append(out, core.GroupIDAndName{ID: g.ID, Name: g.Name})
		}
	}
	return out, nil
}

func (f *fakeStore) GetAdministratedGroups(ctx context.Context, user core.UserName) ([]core.GroupID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.GroupID
	for _, g := range f.groups {
		if g.IsAdministrator(user) {
			out = append(out, g.ID)
		}
	}
	return out, nil
}

func (f *fakeStore) AddMember(ctx context.Context, id core.GroupID, member core.GroupUser, mod time.Time) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := g.Members[member.Name]; ok {
		return &core.UserIsMemberError{Msg: fmt.Sprintf("user %s is already a member", member.Name)}
	}
	g.Members[member.Name] = member
	g.ModifiedAt = mod
	return nil
}

func (f *fakeStore) RemoveMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if g.RoleOf(user) != core.RoleMember {
		return &core.NoSuchUserError{Msg: fmt.Sprintf("user %s is not a standard member", user)}
	}
	delete(g.Members, user)
	g.ModifiedAt = mod
	return nil
}

func (f *fakeStore) PromoteMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	return f.setRole(ctx, id, user, core.RoleMember, core.RoleAdmin, mod)
}

func (f *fakeStore) DemoteAdmin(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	return f.setRole(ctx, id, user, core.RoleAdmin, core.RoleMember, mod)
}

func (f *fakeStore) setRole(ctx context.Context, id core.GroupID, user core.UserName, from, to core.Role, mod time.Time) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := g.Members[user]
	if !ok || m.Role != from {
		return &core.NoSuchUserError{Msg: fmt.Sprintf("user %s does not hold role %s", user, from)}
	}
	m.Role = to
	g.Members[user] = m
	g.ModifiedAt = mod
	return nil
}

func (f *fakeStore) UpdateUserFields(ctx context.Context, id core.GroupID, user core.UserName, fields map[string]*string) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := g.Members[user]
	if !ok {
		return &core.NoSuchUserError{Msg: fmt.Sprintf("user %s is not a member", user)}
	}
	if m.CustomFields == nil {
		m.CustomFields = map[string]string{}
	}
	for k, v := range fields {
		if v == nil {
			delete(m.CustomFields, k)
		} else {
			m.CustomFields[k] = *v
		}
	}
	g.Members[user] = m
	return nil
}

func (f *fakeStore) UpdateLastVisit(ctx context.Context, id core.GroupID, user core.UserName, visit time.Time) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := g.Members[user]
	if !ok {
		return &core.NoSuchUserError{Msg: fmt.Sprintf("user %s is not a member", user)}
	}
	m.LastVisit = &visit
	g.Members[user] = m
	return nil
}

func (f *fakeStore) AddResource(ctx context.Context, id core.GroupID, t core.ResourceType, res core.AttachedResource, mod time.Time) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if g.HasResource(t, res.Descriptor.ID) {
		return &core.ResourceExistsError{Type: t, ID: res.Descriptor.ID}
	}
	if g.Resources[t] == nil {
		g.Resources[t] = map[core.ResourceID]core.AttachedResource{}
	}
	g.Resources[t][res.Descriptor.ID] = res
	g.ModifiedAt = mod
	return nil
}

func (f *fakeStore) RemoveResource(ctx context.Context, id core.GroupID, t core.ResourceType, rid core.ResourceID, mod time.Time) error {
	g, err := f.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !g.HasResource(t, rid) {
		return &core.NoSuchResourceError{Type: t, ID: rid}
	}
	delete(g.Resources[t], rid)
	g.ModifiedAt = mod
	return nil
}

func (f *fakeStore) StoreRequest(ctx context.Context, r *core.GroupRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.CharacteristicString()
	if _, ok := f.open[key]; ok {
		return &core.RequestExistsError{Msg: "request already exists: " + key}
	}
	cp := *r
	f.requests[r.ID] = &cp
	f.open[key] = r.ID
	return nil
}

func (f *fakeStore) GetRequest(ctx context.Context, id core.RequestID) (*core.GroupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, &core.NoSuchRequestError{ID: string(id)}
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetRequestsByRequester(ctx context.Context, user core.UserName, params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*core.GroupRequest
	for _, r := range f.requests {
		if r.Requester == user && (params.IncludeClosed || r.IsOpen()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRequestsByTarget(ctx context.Context, user core.UserName,
	admin map[core.ResourceType][]core.ResourceAdministrativeID,
	params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTargetQuery = admin
	var out []*core.GroupRequest
	for _, r := range f.requests {
		if !params.IncludeClosed && !r.IsOpen() {
			continue
		}
		if invited, ok := r.InvitedUser(); ok && invited == user {
			out = append(out, r)
			continue
		}
		for _, aid := range admin[r.ResourceType] {
			if r.Resource.AdministrativeID == aid {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetRequestsByGroup(ctx context.Context, id core.GroupID, params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	return f.GetRequestsByGroups(ctx, []core.GroupID{id}, params)
}

func (f *fakeStore) GetRequestsByGroups(ctx context.Context, ids []core.GroupID, params core.GetRequestsParams) ([]*core.GroupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*core.GroupRequest
	for _, r := range f.requests {
		for _, id := range ids {
			if r.GroupID == id && (params.IncludeClosed || r.IsOpen()) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GroupHasRequest(ctx context.Context, id core.GroupID, laterThan *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.GroupID != id || !r.IsOpen() {
			continue
		}
		if laterThan == nil || r.ModifiedAt.After(*laterThan) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CloseRequest(ctx context.Context, id core.RequestID, status core.RequestStatus, mod time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return &core.NoSuchRequestError{ID: string(id)}
	}
	if !r.IsOpen() {
		return &core.ClosedRequestError{ID: id}
	}
	delete(f.open, r.CharacteristicString())
	r.Status = status
	r.ModifiedAt = mod
	return nil
}

func (f *fakeStore) GetExpiredRequests(ctx context.Context, now time.Time) ([]core.RequestID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.RequestID
	for _, r := range f.requests {
		if r.IsOpen() && r.ExpiresAt.Before(now) {
			out = append(out, r.ID)
		}
	}
	return out, nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                          { return nil }

// captureNotifier records every notification for assertion.
type captureNotifier struct {
	mu       sync.Mutex
	notified []notifyCall
	canceled []core.RequestID
	accepted []notifyCall
	denied   []notifyCall
	added    []addResourceCall
}

type notifyCall struct {
	targets []core.UserName
	request core.RequestID
}

type addResourceCall struct {
	user    core.UserName
	targets []core.UserName
	group   core.GroupID
	rtype   core.ResourceType
	rid     core.ResourceID
}

func (n *captureNotifier) Notify(ctx context.Context, targets []core.UserName, g *core.Group, r *core.GroupRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, notifyCall{targets, r.ID})
}

func (n *captureNotifier) Cancel(ctx context.Context, id core.RequestID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canceled = append(n.canceled, id)
}

func (n *captureNotifier) Deny(ctx context.Context, targets []core.UserName, r *core.GroupRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.denied = append(n.denied, notifyCall{targets, r.ID})
}

func (n *captureNotifier) Accept(ctx context.Context, targets []core.UserName, r *core.GroupRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted = append(n.accepted, notifyCall{targets, r.ID})
}

func (n *captureNotifier) AddResource(ctx context.Context, user core.UserName, targets []core.UserName,
	id core.GroupID, t core.ResourceType, rid core.ResourceID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added = append(n.added, addResourceCall{user, targets, id, t, rid})
}

// fakeHandler is a configurable resource authority for one type.
type fakeHandler struct {
	// admins maps resource IDs to their administrators.
	admins map[core.ResourceID][]core.UserName
	// administrated maps users to administrative IDs they control.
	administrated map[core.UserName][]core.ResourceAdministrativeID
	// missing resources produce NoSuchResourceError from GetDescriptor.
	missing map[core.ResourceID]bool
	// fields is information reported per resource.
	fields map[core.ResourceID]map[string]string
	// err, when set, is returned from every call.
	err error

	readGrants    []string
	lastInfoLevel authority.AccessLevel
}

func (h *fakeHandler) IsAdministrator(ctx context.Context, id core.ResourceID, user core.UserName) (bool, error) {
	if h.err != nil {
		return false, h.err
	}
	for _, a := range h.admins[id] {
		if a == user {
			return true, nil
		}
	}
	return false, nil
}

func (h *fakeHandler) GetAdministratedResources(ctx context.Context, user core.UserName) ([]core.ResourceAdministrativeID, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.administrated[user], nil
}

func (h *fakeHandler) GetAdministrators(ctx context.Context, id core.ResourceID) ([]core.UserName, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.admins[id], nil
}

func (h *fakeHandler) GetResourceInformation(ctx context.Context, user core.UserName,
	ids []core.ResourceID, level authority.AccessLevel) ([]authority.ResourceInfo, error) {
	if h.err != nil {
		return nil, h.err
	}
	h.lastInfoLevel = level
	var out []authority.ResourceInfo
	for _, id := range ids {
		out = append(out, authority.ResourceInfo{
			Descriptor: descriptorFor(id),
			Exists:     !h.missing[id],
			Fields:     h.fields[id],
		})
	}
	return out, nil
}

func (h *fakeHandler) SetReadPermission(ctx context.Context, id core.ResourceID, user core.UserName) error {
	if h.err != nil {
		return h.err
	}
	h.readGrants = append(h.readGrants, string(id)+":"+string(user))
	return nil
}

func (h *fakeHandler) GetDescriptor(ctx context.Context, id core.ResourceID) (core.ResourceDescriptor, error) {
	if h.err != nil {
		return core.ResourceDescriptor{}, h.err
	}
	if h.missing[id] {
		return core.ResourceDescriptor{}, &core.NoSuchResourceError{ID: id}
	}
	return descriptorFor(id), nil
}

// descriptorFor derives a stable administrative ID, mimicking a type where
// the admin handle is coarser than the resource ID.
func descriptorFor(id core.ResourceID) core.ResourceDescriptor {
	return core.ResourceDescriptor{
		AdministrativeID: core.ResourceAdministrativeID("mod-" + string(id)),
		ID:               id,
	}
}

// fakeIdentity answers user validity from a fixed set.
type fakeIdentity struct {
	valid map[core.UserName]bool
}

func (f *fakeIdentity) Validate(ctx context.Context, token identity.Token) (core.UserName, error) {
	panic("not used")
}

func (f *fakeIdentity) IsValidUser(ctx context.Context, user core.UserName) (bool, error) {
	return f.valid[user], nil
}

// testEnv bundles a service with its fakes and a controllable clock.
type testEnv struct {
	svc      *Service
	store    *fakeStore
	notifier *captureNotifier
	handler  *fakeHandler
	ids      *fakeIdentity
	now      *time.Time
}

func (e *testEnv) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	notifier := &captureNotifier{}
	handler := &fakeHandler{
		admins:        map[core.ResourceID][]core.UserName{},
		administrated: map[core.UserName][]core.ResourceAdministrativeID{},
		missing:       map[core.ResourceID]bool{},
	}
	ids := &fakeIdentity{valid: map[core.UserName]bool{}}
	validators, err := fieldvalidation.NewRegistry(map[string]fieldvalidation.FieldConfig{
		"dept":  {Validator: "string", Parameters: map[string]string{"max-length": "20"}},
		"title": {Validator: "string", UserField: true},
	}, fieldvalidation.BuiltinValidators())
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, err := New(Config{
		Storage:     store,
		Authorities: authority.NewRegistry(map[core.ResourceType]authority.Handler{"workspace": handler}),
		Identity:    ids,
		Notifier:    notifier,
		Validators:  validators,
		Logger:      observability.NewLogger(observability.ErrorLevel, io.Discard),
		Clock:       func() time.Time { return now },
	})
	require.NoError(t, err)
	return &testEnv{svc: svc, store: store, notifier: notifier, handler: handler, ids: ids, now: &now}
}

// mustCreateGroup creates a group with the given owner and extra members.
func mustCreateGroup(t *testing.T, e *testEnv, id core.GroupID, owner core.UserName,
	admins, members []core.UserName) *core.Group {
	t.Helper()
	g, err := e.svc.CreateGroup(context.Background(), owner, NewGroupParams{
		ID: id, Name: core.GroupName("Group " + string(id))})
	require.NoError(t, err)
	for _, a := range admins {
		require.NoError(t, e.store.AddMember(context.Background(), id,
			core.GroupUser{Name: a, Role: core.RoleAdmin, Joined: *e.now}, *e.now))
	}
	for _, m := range members {
		require.NoError(t, e.store.AddMember(context.Background(), id,
			core.GroupUser{Name: m, Role: core.RoleMember, Joined: *e.now}, *e.now))
	}
	return g
}
