package core

// GroupUpdate carries optional changes to a group's mutable metadata. Nil
// fields are left unchanged. A nil value in CustomFields removes the field;
// a non-nil value sets it.
type GroupUpdate struct {
	Name              *GroupName
	IsPrivate         *bool
	PrivateMemberList *bool
	CustomFields      map[string]*string
}

// HasUpdate reports whether the update changes anything.
func (u GroupUpdate) HasUpdate() bool {
	return u.Name != nil || u.IsPrivate != nil || u.PrivateMemberList != nil ||
		len(u.CustomFields) > 0
}

// GroupIDAndName is a minimal group listing entry.
type GroupIDAndName struct {
	ID   GroupID   `json:"id"`
	Name GroupName `json:"name"`
}
