package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxResourceTypeLength = 20
	maxResourceIDLength   = 256
)

// ResourceType is the namespace of an external resource, for example
// "workspace" or "catalogmethod". Each type has its own resource authority.
type ResourceType string

// ResourceTypeUser is the built-in type for user-targeted requests. Invites
// and join requests store the target user as a resource of this type so that
// request storage and indexing are uniform across all targets.
const ResourceTypeUser ResourceType = "user"

// NewResourceType validates and returns a resource type.
func NewResourceType(t string) (ResourceType, error) {
	t = strings.TrimSpace(t)
	if t == "" {
		return "", &MissingParameterError{Param: "resource type"}
	}
	if utf8.RuneCountInString(t) > maxResourceTypeLength {
		return "", &IllegalParameterError{
			Msg: fmt.Sprintf("resource type size greater than limit %d", maxResourceTypeLength)}
	}
	for _, r := range t {
		if r < 'a' || r > 'z' {
			return "", &IllegalParameterError{
				Msg: fmt.Sprintf("illegal character in resource type %s: %q", t, r)}
		}
	}
	return ResourceType(t), nil
}

func (t ResourceType) String() string { return string(t) }

// ResourceID identifies a specific resource within a type, for example a
// workspace ID or a catalog module method.
type ResourceID string

// ResourceAdministrativeID is the coarse-grained handle under which an
// external authority defines administrators. Every resource ID maps to
// exactly one administrative ID; for many types the two are identical.
type ResourceAdministrativeID string

// NewResourceID validates and returns a resource ID.
func NewResourceID(id string) (ResourceID, error) {
	s, err := checkResourceString(id, "resource ID")
	if err != nil {
		return "", err
	}
	return ResourceID(s), nil
}

// NewResourceAdministrativeID validates and returns a resource
// administrative ID.
func NewResourceAdministrativeID(id string) (ResourceAdministrativeID, error) {
	s, err := checkResourceString(id, "resource administrative ID")
	if err != nil {
		return "", err
	}
	return ResourceAdministrativeID(s), nil
}

func checkResourceString(id, name string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &MissingParameterError{Param: name}
	}
	if utf8.RuneCountInString(id) > maxResourceIDLength {
		return "", &IllegalParameterError{
			Msg: fmt.Sprintf("%s size greater than limit %d", name, maxResourceIDLength)}
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", &IllegalParameterError{
				Msg: fmt.Sprintf("illegal character in %s %s: %q", name, id, r)}
		}
	}
	return id, nil
}

func (i ResourceID) String() string { return string(i) }

func (i ResourceAdministrativeID) String() string { return string(i) }

// ResourceDescriptor locates an external resource: the specific resource ID
// plus the administrative ID that administrator checks are performed against.
type ResourceDescriptor struct {
	AdministrativeID ResourceAdministrativeID `json:"administrative_id"`
	ID               ResourceID               `json:"id"`
}

// NewResourceDescriptor returns a descriptor for the given IDs.
func NewResourceDescriptor(adminID ResourceAdministrativeID, id ResourceID) ResourceDescriptor {
	return ResourceDescriptor{AdministrativeID: adminID, ID: id}
}

// UserResource returns the descriptor for a user-targeted request. The user
// name serves as both the administrative and the resource ID.
func UserResource(user UserName) ResourceDescriptor {
	return ResourceDescriptor{
		AdministrativeID: ResourceAdministrativeID(user),
		ID:               ResourceID(user),
	}
}
