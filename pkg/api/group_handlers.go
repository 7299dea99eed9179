package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/httputil"
	"github.com/kbase/groups-sub003/pkg/service"
)

func pathGroupID(r *http.Request) (core.GroupID, error) {
	return core.NewGroupID(mux.Vars(r)["id"])
}

func pathUserName(r *http.Request) (core.UserName, error) {
	return core.NewUserName(mux.Vars(r)["user"])
}

// listGroups handles GET /groups
func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	user, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	params, err := parseGroupsParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	groups, err := s.svc.ListGroups(r.Context(), user, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, groups)
}

// createGroup handles POST /groups/{id}
func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body createGroupBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	name, err := core.NewGroupName(body.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	g, err := s.svc.CreateGroup(r.Context(), user, service.NewGroupParams{
		ID:                id,
		Name:              name,
		IsPrivate:         body.IsPrivate,
		PrivateMemberList: body.PrivateMemberList,
		CustomFields:      body.CustomFields,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, g)
}

// getGroup handles GET /groups/{id}
func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	g, err := s.svc.GetGroup(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, g)
}

// updateGroup handles PUT /groups/{id}
func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body updateGroupBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	update := core.GroupUpdate{
		IsPrivate:         body.IsPrivate,
		PrivateMemberList: body.PrivateMemberList,
		CustomFields:      body.CustomFields,
	}
	if body.Name != nil {
		name, err := core.NewGroupName(*body.Name)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		update.Name = &name
	}
	if err := s.svc.UpdateGroup(r.Context(), user, id, update); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// groupExists handles GET /groups/{id}/exists
func (s *Server) groupExists(w http.ResponseWriter, r *http.Request) {
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	exists, err := s.svc.GroupExists(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"exists": exists})
}

// visitGroup handles PUT /groups/{id}/visit
func (s *Server) visitGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.VisitGroup(r.Context(), user, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// groupNames handles GET /names/{ids} where ids is a comma separated list.
// Names are visible regardless of group privacy.
func (s *Server) groupNames(w http.ResponseWriter, r *http.Request) {
	var ids []core.GroupID
	for _, raw := range strings.Split(mux.Vars(r)["ids"], ",") {
		id, err := core.NewGroupID(raw)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ids = append(ids, id)
	}
	names, err := s.svc.GetGroupNames(r.Context(), ids)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, names)
}

// memberGroups handles GET /member
func (s *Server) memberGroups(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	groups, err := s.svc.GetMemberGroups(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, groups)
}

// groupHasRequests handles GET /groups/{id}/requests/new
func (s *Server) groupHasRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathGroupID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	laterThan, err := parseLaterThan(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	hasNew, err := s.svc.GroupHasRequests(r.Context(), user, id, laterThan)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"new": hasNew})
}
