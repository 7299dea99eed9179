package core

import (
	"errors"
	"fmt"
)

// MissingParameterError indicates a required input was absent or empty.
type MissingParameterError struct {
	Param string
}

func (e *MissingParameterError) Error() string {
	return "missing required parameter: " + e.Param
}

// IllegalParameterError indicates an input was present but malformed, for
// example an oversized field or an ID with illegal characters.
type IllegalParameterError struct {
	Msg string
}

func (e *IllegalParameterError) Error() string { return e.Msg }

// NoSuchGroupError indicates the named group does not exist or is not
// visible to the caller.
type NoSuchGroupError struct {
	ID GroupID
}

func (e *NoSuchGroupError) Error() string {
	return fmt.Sprintf("no such group: %s", e.ID)
}

// GroupExistsError indicates a group with the given ID already exists.
type GroupExistsError struct {
	ID GroupID
}

func (e *GroupExistsError) Error() string {
	return fmt.Sprintf("group already exists: %s", e.ID)
}

// NoSuchRequestError indicates the request ID does not match any stored
// request.
type NoSuchRequestError struct {
	ID string
}

func (e *NoSuchRequestError) Error() string {
	return fmt.Sprintf("no such request: %s", e.ID)
}

// ClosedRequestError indicates an operation required an open request but the
// request has reached a terminal status.
type ClosedRequestError struct {
	ID RequestID
}

func (e *ClosedRequestError) Error() string {
	return fmt.Sprintf("request %s is already closed", e.ID)
}

// RequestExistsError indicates an equivalent open request already exists for
// the same group, requester and target.
type RequestExistsError struct {
	Msg string
}

func (e *RequestExistsError) Error() string { return e.Msg }

// NoSuchUserError indicates a user is not present where expected, for
// example removing a user that is not a group member.
type NoSuchUserError struct {
	Msg string
}

func (e *NoSuchUserError) Error() string { return e.Msg }

// UserIsMemberError indicates a user already holds a role in the group.
type UserIsMemberError struct {
	Msg string
}

func (e *UserIsMemberError) Error() string { return e.Msg }

// NoSuchResourceError indicates a resource does not exist in the group or at
// the external authority.
type NoSuchResourceError struct {
	Type ResourceType
	ID   ResourceID
}

func (e *NoSuchResourceError) Error() string {
	return fmt.Sprintf("no such resource: %s %s", e.Type, e.ID)
}

// NoSuchResourceTypeError indicates no resource authority is registered for
// the type.
type NoSuchResourceTypeError struct {
	Type ResourceType
}

func (e *NoSuchResourceTypeError) Error() string {
	return fmt.Sprintf("no such resource type: %s", e.Type)
}

// ResourceExistsError indicates the resource is already attached to the
// group.
type ResourceExistsError struct {
	Type ResourceType
	ID   ResourceID
}

func (e *ResourceExistsError) Error() string {
	return fmt.Sprintf("resource already in group: %s %s", e.Type, e.ID)
}

// UnauthorizedError indicates the caller lacks the role or administrator
// status an operation requires. It is never retried.
type UnauthorizedError struct {
	Msg string
}

func (e *UnauthorizedError) Error() string { return e.Msg }

// AuthenticationError indicates the identity authority rejected or could not
// validate the caller's token. Distinct from UnauthorizedError: the caller's
// identity is unknown, not merely insufficient.
type AuthenticationError struct {
	Msg string
}

func (e *AuthenticationError) Error() string { return e.Msg }

// ResourceHandlerError indicates a resource authority was unreachable or
// returned an unexpected response. It is a transient infrastructure fault,
// never an answer about administrator status.
type ResourceHandlerError struct {
	Type ResourceType
	Err  error
}

func (e *ResourceHandlerError) Error() string {
	return fmt.Sprintf("resource authority for type %s failed: %v", e.Type, e.Err)
}

func (e *ResourceHandlerError) Unwrap() error { return e.Err }

// FieldValidationError indicates a custom field value was rejected by its
// configured validator.
type FieldValidationError struct {
	Field string
	Msg   string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Msg)
}

// IsNoSuchGroup reports whether the error is a NoSuchGroupError.
func IsNoSuchGroup(err error) bool {
	var e *NoSuchGroupError
	return errors.As(err, &e)
}

// IsNoSuchRequest reports whether the error is a NoSuchRequestError.
func IsNoSuchRequest(err error) bool {
	var e *NoSuchRequestError
	return errors.As(err, &e)
}

// IsClosedRequest reports whether the error is a ClosedRequestError.
func IsClosedRequest(err error) bool {
	var e *ClosedRequestError
	return errors.As(err, &e)
}

// IsRequestExists reports whether the error is a RequestExistsError.
func IsRequestExists(err error) bool {
	var e *RequestExistsError
	return errors.As(err, &e)
}

// IsUnauthorized reports whether the error is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}
