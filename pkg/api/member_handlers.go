package api

import (
	"net/http"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/httputil"
)

// removeMember handles DELETE /groups/{id}/members/{user}. Members may
// remove themselves; administrators may remove any regular member.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, member, err := pathGroupAndUser(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.RemoveMember(r.Context(), caller, id, member); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// promoteMember handles PUT /groups/{id}/members/{user}/admin
func (s *Server) promoteMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, member, err := pathGroupAndUser(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.PromoteMember(r.Context(), caller, id, member); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// demoteAdmin handles DELETE /groups/{id}/members/{user}/admin
func (s *Server) demoteAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, admin, err := pathGroupAndUser(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.DemoteAdmin(r.Context(), caller, id, admin); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// updateUserFields handles PUT /groups/{id}/members/{user}/fields
func (s *Server) updateUserFields(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, member, err := pathGroupAndUser(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body updateUserFieldsBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if err := s.svc.UpdateUserFields(r.Context(), caller, id, member, body.CustomFields); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func pathGroupAndUser(r *http.Request) (core.GroupID, core.UserName, error) {
	id, err := pathGroupID(r)
	if err != nil {
		return "", "", err
	}
	user, err := pathUserName(r)
	if err != nil {
		return "", "", err
	}
	return id, user, nil
}
