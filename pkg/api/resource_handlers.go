package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/httputil"
)

func pathResource(r *http.Request) (core.GroupID, core.ResourceType, core.ResourceID, error) {
	id, err := pathGroupID(r)
	if err != nil {
		return "", "", "", err
	}
	vars := mux.Vars(r)
	t, err := core.NewResourceType(vars["type"])
	if err != nil {
		return "", "", "", err
	}
	rid, err := core.NewResourceID(vars["resource"])
	if err != nil {
		return "", "", "", err
	}
	return id, t, rid, nil
}

// addResource handles POST /groups/{id}/resources/{type}/{resource}. When
// the caller administers both the group and the resource the attachment
// completes immediately and the response carries no request; otherwise a
// request is created for the other party.
func (s *Server) addResource(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, t, rid, err := pathResource(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req, err := s.svc.AddResource(r.Context(), user, id, t, rid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if req == nil {
		httputil.WriteSuccess(w, map[string]bool{"complete": true})
		return
	}
	httputil.WriteCreated(w, req)
}

// removeResource handles DELETE /groups/{id}/resources/{type}/{resource}
func (s *Server) removeResource(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, t, rid, err := pathResource(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.RemoveResource(r.Context(), user, id, t, rid); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
