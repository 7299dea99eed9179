package core

// UserAction is an action a user may invoke on a request. The legal set for
// a given (request, user) pair is computed on demand and never stored.
type UserAction string

const (
	ActionAccept UserAction = "Accept"
	ActionDeny   UserAction = "Deny"
	ActionCancel UserAction = "Cancel"
	ActionExpire UserAction = "Expire"
)

func (a UserAction) String() string { return string(a) }

// RequestWithActions pairs a request with the actions the viewing user may
// take on it.
type RequestWithActions struct {
	Request *GroupRequest `json:"request"`
	Actions []UserAction  `json:"actions"`
}
