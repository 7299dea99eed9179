package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kbase/groups-sub003/pkg/core"
)

// parseRequestsParams builds request listing parameters from the query
// string. Listings are open-only and ascending unless told otherwise;
// excludeupto is an epoch millisecond cursor on modification time.
func parseRequestsParams(r *http.Request) (core.GetRequestsParams, error) {
	params := core.DefaultRequestsParams()
	q := r.URL.Query()

	if q.Has("closed") {
		params.IncludeClosed = true
	}
	asc, err := parseOrder(q.Get("order"))
	if err != nil {
		return params, err
	}
	params.SortAscending = asc

	if cursor := q.Get("excludeupto"); cursor != "" {
		ms, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return params, &core.IllegalParameterError{
				Msg: "invalid epoch ms for excludeupto: " + cursor}
		}
		t := time.UnixMilli(ms).UTC()
		params.ExcludeUpTo = &t
	}

	t, rid, err := parseResourceFilter(q.Get("resourcetype"), q.Get("resource"))
	if err != nil {
		return params, err
	}
	params.ResourceType = t
	params.ResourceID = rid
	return params, nil
}

// parseGroupsParams builds group listing parameters from the query string.
// excludeupto is an exclusive cursor on group ID.
func parseGroupsParams(r *http.Request) (core.GetGroupsParams, error) {
	params := core.DefaultGroupsParams()
	q := r.URL.Query()

	asc, err := parseOrder(q.Get("order"))
	if err != nil {
		return params, err
	}
	params.SortAscending = asc
	params.ExcludeUpTo = core.GroupID(strings.TrimSpace(q.Get("excludeupto")))

	if role := q.Get("role"); role != "" && role != core.RoleNone.String() {
		parsed, err := core.ParseRole(role)
		if err != nil {
			return params, err
		}
		params.Role = parsed
	}

	t, rid, err := parseResourceFilter(q.Get("resourcetype"), q.Get("resource"))
	if err != nil {
		return params, err
	}
	params.ResourceType = t
	params.ResourceID = rid
	return params, nil
}

func parseOrder(order string) (bool, error) {
	switch order {
	case "", "asc":
		return true, nil
	case "desc":
		return false, nil
	}
	return false, &core.IllegalParameterError{Msg: "invalid sort order: " + order}
}

// parseResourceFilter validates the resource filter pair. Both parts must be
// present or both absent.
func parseResourceFilter(resType, resID string) (core.ResourceType, core.ResourceID, error) {
	if resType == "" && resID == "" {
		return "", "", nil
	}
	if resType == "" || resID == "" {
		return "", "", &core.IllegalParameterError{
			Msg: "resourcetype and resource must be provided together"}
	}
	t, err := core.NewResourceType(resType)
	if err != nil {
		return "", "", err
	}
	rid, err := core.NewResourceID(resID)
	if err != nil {
		return "", "", err
	}
	return t, rid, nil
}

// parseLaterThan parses the optional laterthan epoch ms query parameter.
func parseLaterThan(r *http.Request) (*time.Time, error) {
	cursor := r.URL.Query().Get("laterthan")
	if cursor == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return nil, &core.IllegalParameterError{
			Msg: "invalid epoch ms for laterthan: " + cursor}
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
