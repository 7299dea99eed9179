package core

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RequestType distinguishes who is the passive party of a request. A REQUEST
// is initiated by the party that wants something from the group (a user
// joining, a resource administrator attaching a resource); an INVITE is
// initiated by a group administrator toward a user or resource.
type RequestType string

const (
	RequestTypeRequest RequestType = "Request"
	RequestTypeInvite  RequestType = "Invite"
)

// ParseRequestType returns the request type for its string form.
func ParseRequestType(s string) (RequestType, error) {
	switch RequestType(s) {
	case RequestTypeRequest, RequestTypeInvite:
		return RequestType(s), nil
	}
	return "", &IllegalParameterError{Msg: "invalid request type: " + s}
}

func (t RequestType) String() string { return string(t) }

// StatusType is the lifecycle state of a request. OPEN is the initial state;
// all other states are terminal.
type StatusType string

const (
	StatusOpen     StatusType = "Open"
	StatusAccepted StatusType = "Accepted"
	StatusDenied   StatusType = "Denied"
	StatusCanceled StatusType = "Canceled"
	StatusExpired  StatusType = "Expired"
)

// ParseStatusType returns the status type for its string form.
func ParseStatusType(s string) (StatusType, error) {
	switch StatusType(s) {
	case StatusOpen, StatusAccepted, StatusDenied, StatusCanceled, StatusExpired:
		return StatusType(s), nil
	}
	return "", &IllegalParameterError{Msg: "invalid status type: " + s}
}

func (s StatusType) String() string { return string(s) }

// MaxClosedReasonLength is the maximum size in code points of a denial
// reason.
const MaxClosedReasonLength = 500

// RequestStatus is the status of a request: the status type plus, for
// accepted and denied requests, the closing user, and for denied requests an
// optional reason.
type RequestStatus struct {
	Type         StatusType `json:"type"`
	ClosedBy     *UserName  `json:"closed_by,omitempty"`
	ClosedReason string     `json:"closed_reason,omitempty"`
}

// OpenStatus returns an open status.
func OpenStatus() RequestStatus {
	return RequestStatus{Type: StatusOpen}
}

// CanceledStatus returns a canceled status.
func CanceledStatus() RequestStatus {
	return RequestStatus{Type: StatusCanceled}
}

// ExpiredStatus returns an expired status.
func ExpiredStatus() RequestStatus {
	return RequestStatus{Type: StatusExpired}
}

// AcceptedStatus returns an accepted status closed by the given user.
func AcceptedStatus(by UserName) (RequestStatus, error) {
	if by == "" {
		return RequestStatus{}, &MissingParameterError{Param: "closed by"}
	}
	return RequestStatus{Type: StatusAccepted, ClosedBy: &by}, nil
}

// DeniedStatus returns a denied status closed by the given user. The reason
// is trimmed; an empty reason is treated as absent.
func DeniedStatus(by UserName, reason string) (RequestStatus, error) {
	if by == "" {
		return RequestStatus{}, &MissingParameterError{Param: "closed by"}
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxClosedReasonLength {
		return RequestStatus{}, &IllegalParameterError{
			Msg: fmt.Sprintf("reason size greater than limit %d", MaxClosedReasonLength)}
	}
	return RequestStatus{Type: StatusDenied, ClosedBy: &by, ClosedReason: reason}, nil
}

// StatusFrom constructs a status from loosely typed parts, applying the same
// rules as the per-type constructors. Closed-by is ignored for open,
// canceled and expired statuses; the reason is ignored unless the status is
// denied.
func StatusFrom(t StatusType, closedBy *UserName, reason string) (RequestStatus, error) {
	switch t {
	case StatusOpen, StatusCanceled, StatusExpired:
		return RequestStatus{Type: t}, nil
	case StatusAccepted:
		if closedBy == nil {
			return RequestStatus{}, &MissingParameterError{Param: "closed by"}
		}
		return AcceptedStatus(*closedBy)
	case StatusDenied:
		if closedBy == nil {
			return RequestStatus{}, &MissingParameterError{Param: "closed by"}
		}
		return DeniedStatus(*closedBy, reason)
	}
	return RequestStatus{}, &IllegalParameterError{Msg: "invalid status type: " + string(t)}
}

// IsOpen reports whether the status is open.
func (s RequestStatus) IsOpen() bool { return s.Type == StatusOpen }

// RequestID is the UUID identity of a request.
type RequestID string

// NewRequestID returns a new random request ID.
func NewRequestID() RequestID {
	return RequestID(uuid.NewString())
}

// ParseRequestID validates a request ID string.
func ParseRequestID(s string) (RequestID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", &IllegalParameterError{Msg: "invalid request id: " + s}
	}
	return RequestID(id.String()), nil
}

func (r RequestID) String() string { return string(r) }

// GroupRequest is a proposal to change group membership or resource
// attachment. The target is always stored as a typed resource; user targets
// use the built-in ResourceTypeUser with the user name as both IDs.
type GroupRequest struct {
	ID           RequestID          `json:"id"`
	GroupID      GroupID            `json:"group_id"`
	Requester    UserName           `json:"requester"`
	Type         RequestType        `json:"type"`
	ResourceType ResourceType       `json:"resource_type"`
	Resource     ResourceDescriptor `json:"resource"`
	Status       RequestStatus      `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	ModifiedAt   time.Time          `json:"modified_at"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

// NewGroupRequest creates an open request. Expiry must be after creation.
func NewGroupRequest(
	id RequestID,
	groupID GroupID,
	requester UserName,
	reqType RequestType,
	resourceType ResourceType,
	resource ResourceDescriptor,
	created time.Time,
	expires time.Time,
) (*GroupRequest, error) {
	if id == "" {
		return nil, &MissingParameterError{Param: "request id"}
	}
	if groupID == "" {
		return nil, &MissingParameterError{Param: "group id"}
	}
	if requester == "" {
		return nil, &MissingParameterError{Param: "requester"}
	}
	if resourceType == "" || resource.ID == "" || resource.AdministrativeID == "" {
		return nil, &MissingParameterError{Param: "resource"}
	}
	if !expires.After(created) {
		return nil, &IllegalParameterError{Msg: "expiration date must be after creation date"}
	}
	return &GroupRequest{
		ID:           id,
		GroupID:      groupID,
		Requester:    requester,
		Type:         reqType,
		ResourceType: resourceType,
		Resource:     resource,
		Status:       OpenStatus(),
		CreatedAt:    created,
		ModifiedAt:   created,
		ExpiresAt:    expires,
	}, nil
}

// IsInvite reports whether the request is an invitation.
func (r *GroupRequest) IsInvite() bool { return r.Type == RequestTypeInvite }

// IsOpen reports whether the request is still open.
func (r *GroupRequest) IsOpen() bool { return r.Status.IsOpen() }

// IsExpired reports whether the request's expiration date has passed,
// independent of whether the expiration agent has closed it yet.
func (r *GroupRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// InvitedUser returns the target user for user-targeted invitations.
func (r *GroupRequest) InvitedUser() (UserName, bool) {
	if r.ResourceType == ResourceTypeUser && r.Type == RequestTypeInvite {
		return UserName(r.Resource.ID), true
	}
	return "", false
}

// TargetsUser reports whether the request's target is a user rather than an
// external resource.
func (r *GroupRequest) TargetsUser() bool {
	return r.ResourceType == ResourceTypeUser
}

// CharacteristicString derives the natural-key digest used to prevent
// duplicate open requests. Two requests for the same group, requester,
// request type and target produce the same digest. The key covers the
// resource ID but not the administrative ID, which is derivable from it.
func (r *GroupRequest) CharacteristicString() string {
	h := md5.New()
	fmt.Fprintf(h, "g:%s:u:%s:t:%s:rt:%s:r:%s",
		r.GroupID, r.Requester, r.Type, r.ResourceType, r.Resource.ID)
	return hex.EncodeToString(h.Sum(nil))
}
