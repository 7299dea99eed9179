package identity

import (
	"context"

	"github.com/kbase/groups-sub003/pkg/core"
)

// Token is an opaque credential presented by a caller. The contents are
// meaningful only to the identity authority.
type Token string

// Authority answers who a caller is and whether a user name exists.
type Authority interface {
	// Validate resolves a token to the user name it was issued to. Returns
	// core.AuthenticationError for an invalid or expired token.
	Validate(ctx context.Context, token Token) (core.UserName, error)

	// IsValidUser reports whether the user name is known to the authority.
	IsValidUser(ctx context.Context, user core.UserName) (bool, error)
}
