package api

import (
	"errors"
	"net/http"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/httputil"
	"github.com/kbase/groups-sub003/pkg/observability"
)

func asErr(err error, target interface{}) bool {
	return errors.As(err, target)
}

// writeServiceError maps a domain error onto an HTTP response. Unknown
// errors are logged and reported as 500 without leaking internals.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		missingParam *core.MissingParameterError
		illegalParam *core.IllegalParameterError
		fieldErr     *core.FieldValidationError
		authnErr     *core.AuthenticationError
		authzErr     *core.UnauthorizedError
		noGroup      *core.NoSuchGroupError
		noRequest    *core.NoSuchRequestError
		noUser       *core.NoSuchUserError
		noResource   *core.NoSuchResourceError
		noResType    *core.NoSuchResourceTypeError
		groupExists  *core.GroupExistsError
		reqExists    *core.RequestExistsError
		isMember     *core.UserIsMemberError
		resExists    *core.ResourceExistsError
		closedReq    *core.ClosedRequestError
		handlerErr   *core.ResourceHandlerError
	)

	switch {
	case asErr(err, &missingParam), asErr(err, &illegalParam), asErr(err, &fieldErr):
		httputil.WriteBadRequest(w, err.Error())
	case asErr(err, &authnErr):
		httputil.WriteUnauthorized(w, err.Error())
	case asErr(err, &authzErr):
		httputil.WriteForbidden(w, err.Error())
	case asErr(err, &noGroup), asErr(err, &noRequest), asErr(err, &noUser),
		asErr(err, &noResource), asErr(err, &noResType):
		httputil.WriteNotFoundError(w, err.Error())
	case asErr(err, &groupExists), asErr(err, &reqExists), asErr(err, &isMember),
		asErr(err, &resExists), asErr(err, &closedReq):
		httputil.WriteConflict(w, err.Error())
	case asErr(err, &handlerErr):
		s.logInternal(r, err)
		httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
	default:
		s.logInternal(r, err)
		httputil.WriteInternalError(w, err)
	}
}

func (s *Server) logInternal(r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("request failed")
}
