package core

import "time"

// GetRequestsParams filters and orders a request listing. ExcludeUpTo is an
// exclusive cursor on modification time: ascending listings return requests
// strictly after it, descending listings strictly before it.
type GetRequestsParams struct {
	IncludeClosed bool
	SortAscending bool
	ExcludeUpTo   *time.Time
	// ResourceType and ResourceID limit the listing to requests targeting
	// the resource. Both must be set together.
	ResourceType ResourceType
	ResourceID   ResourceID
}

// DefaultRequestsParams returns open-only, ascending parameters.
func DefaultRequestsParams() GetRequestsParams {
	return GetRequestsParams{SortAscending: true}
}

// GetGroupsParams filters and orders a group listing. ExcludeUpTo is an
// exclusive cursor on group ID.
type GetGroupsParams struct {
	SortAscending bool
	ExcludeUpTo   GroupID
	// ResourceType and ResourceID limit the listing to groups containing
	// the resource. Both must be set together.
	ResourceType ResourceType
	ResourceID   ResourceID
	// Role limits the listing to groups where the viewing user holds at
	// least the given role. RoleNone applies no filter.
	Role Role
}

// DefaultGroupsParams returns ascending, unfiltered parameters.
func DefaultGroupsParams() GetGroupsParams {
	return GetGroupsParams{SortAscending: true, Role: RoleNone}
}
