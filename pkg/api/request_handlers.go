package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/httputil"
)

func pathRequestID(r *http.Request) (core.RequestID, error) {
	return core.ParseRequestID(mux.Vars(r)["id"])
}

// requestMembership handles POST /groups/{id}/membership
func (s *Server) requestMembership(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := s.svc.RequestGroupMembership(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, req)
}

// inviteUser handles POST /groups/{id}/members/{user}
func (s *Server) inviteUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, target, err := pathGroupAndUser(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := s.svc.InviteUserToGroup(r.Context(), caller, id, target)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, req)
}

// getRequest handles GET /requests/id/{id}. The response pairs the request
// with the actions the caller may take on it.
func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathRequestID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := s.svc.GetRequest(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, req)
}

type requestLister func(ctx context.Context, user core.UserName, params core.GetRequestsParams) ([]*core.GroupRequest, error)

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request, list requestLister) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	params, err := parseRequestsParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	requests, err := list(r.Context(), user, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, requests)
}

// listCreatedRequests handles GET /requests/created
func (s *Server) listCreatedRequests(w http.ResponseWriter, r *http.Request) {
	s.listRequests(w, r, s.svc.ListCreatedRequests)
}

// listTargetedRequests handles GET /requests/targeted
func (s *Server) listTargetedRequests(w http.ResponseWriter, r *http.Request) {
	s.listRequests(w, r, s.svc.ListTargetedRequests)
}

// listAdministratedRequests handles GET /requests/administrated
func (s *Server) listAdministratedRequests(w http.ResponseWriter, r *http.Request) {
	s.listRequests(w, r, s.svc.ListAdministratedGroupsRequests)
}

// listGroupRequests handles GET /groups/{id}/requests
func (s *Server) listGroupRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	params, err := parseRequestsParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	requests, err := s.svc.ListGroupRequests(r.Context(), user, id, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, requests)
}

// cancelRequest handles PUT /requests/id/{id}/cancel
func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathRequestID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := s.svc.CancelRequest(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, req)
}

// acceptRequest handles PUT /requests/id/{id}/accept
func (s *Server) acceptRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathRequestID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := s.svc.AcceptRequest(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, req)
}

// denyRequest handles PUT /requests/id/{id}/deny. The body carries an
// optional denial reason; an empty body is accepted.
func (s *Server) denyRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathRequestID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body denyRequestBody
	if r.ContentLength > 0 {
		if !httputil.ParseJSONOrError(w, r, &body) {
			return
		}
	}
	req, err := s.svc.DenyRequest(r.Context(), user, id, body.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, req)
}

// grantResourcePermission handles POST /requests/id/{id}/perm. Group
// administrators use it to read the target of a resource request before
// deciding on it.
func (s *Server) grantResourcePermission(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathRequestID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.GrantResourcePermission(r.Context(), user, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
