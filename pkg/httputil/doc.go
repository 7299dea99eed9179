// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, group)
//	httputil.WriteCreated(w, request)
//	httputil.WriteNoContent(w)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Token expired")
//	httputil.WriteForbidden(w, "Insufficient permissions")
//	httputil.WriteConflict(w, "Group already exists")
//
// # Request Parsing
//
// JSON parsing:
//
//	var body createGroupBody
//	if !httputil.ParseJSONOrError(w, r, &body) {
//		return // Error response already written
//	}
//
// # Middleware
//
//	router.Use(mux.MiddlewareFunc(httputil.ContentTypeMiddleware))
//	router.Use(mux.MiddlewareFunc(httputil.MaxBytesMiddleware(1 << 20)))
//
// # Related Packages
//
//   - pkg/api: HTTP handlers built on these helpers
package httputil
