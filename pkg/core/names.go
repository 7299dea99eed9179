package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxGroupIDLength   = 100
	maxGroupNameLength = 256
	maxUserNameLength  = 100
)

// GroupID is the immutable identifier of a group. It is a lowercase slug
// starting with a letter and containing only ASCII letters, digits and
// hyphens.
type GroupID string

// GroupName is the display name of a group.
type GroupName string

// UserName is the name of a user as reported by the identity authority.
type UserName string

// NewGroupID validates and returns a group ID.
func NewGroupID(id string) (GroupID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &MissingParameterError{Param: "group id"}
	}
	if utf8.RuneCountInString(id) > maxGroupIDLength {
		return "", &IllegalParameterError{
			Msg: fmt.Sprintf("group id size greater than limit %d", maxGroupIDLength)}
	}
	if id[0] < 'a' || id[0] > 'z' {
		return "", &IllegalParameterError{Msg: "group id must start with a letter"}
	}
	for _, r := range id {
		if !isLowerAlnum(r) && r != '-' {
			return "", &IllegalParameterError{
				Msg: fmt.Sprintf("illegal character in group id %s: %q", id, r)}
		}
	}
	return GroupID(id), nil
}

func (g GroupID) String() string { return string(g) }

// NewGroupName validates and returns a group display name. The name is
// trimmed and may not contain control characters.
func NewGroupName(name string) (GroupName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &MissingParameterError{Param: "group name"}
	}
	if utf8.RuneCountInString(name) > maxGroupNameLength {
		return "", &IllegalParameterError{
			Msg: fmt.Sprintf("group name size greater than limit %d", maxGroupNameLength)}
	}
	if err := checkNoControlChars(name, "group name"); err != nil {
		return "", err
	}
	return GroupName(name), nil
}

func (g GroupName) String() string { return string(g) }

// NewUserName validates and returns a user name. User names are lowercase,
// start with a letter, and contain only ASCII letters and digits.
func NewUserName(name string) (UserName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &MissingParameterError{Param: "user name"}
	}
	if utf8.RuneCountInString(name) > maxUserNameLength {
		return "", &IllegalParameterError{
			Msg: fmt.Sprintf("user name size greater than limit %d", maxUserNameLength)}
	}
	if name[0] < 'a' || name[0] > 'z' {
		return "", &IllegalParameterError{Msg: "user name must start with a letter"}
	}
	for _, r := range name {
		if !isLowerAlnum(r) {
			return "", &IllegalParameterError{
				Msg: fmt.Sprintf("illegal character in user name %s: %q", name, r)}
		}
	}
	return UserName(name), nil
}

func (u UserName) String() string { return string(u) }

func isLowerAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func checkNoControlChars(s, name string) error {
	for _, r := range s {
		if unicode.IsControl(r) {
			return &IllegalParameterError{Msg: name + " contains control characters"}
		}
	}
	return nil
}
