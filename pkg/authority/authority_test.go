package authority

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/identity"
)

// fakeIdentity answers user existence from a fixed set.
type fakeIdentity struct {
	users map[core.UserName]bool
	err   error
}

func (f *fakeIdentity) Validate(ctx context.Context, token identity.Token) (core.UserName, error) {
	panic("not used")
}

func (f *fakeIdentity) IsValidUser(ctx context.Context, user core.UserName) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.users[user], nil
}

func TestRegistry(t *testing.T) {
	user := NewUserHandler(nil)
	reg := NewRegistry(map[core.ResourceType]Handler{
		core.ResourceTypeUser: user,
	})

	t.Run("bound type", func(t *testing.T) {
		h, err := reg.Handler(core.ResourceTypeUser)
		require.NoError(t, err)
		assert.Same(t, Handler(user), h)
	})

	t.Run("unbound type", func(t *testing.T) {
		_, err := reg.Handler("workspace")
		require.Error(t, err)
		var nstErr *core.NoSuchResourceTypeError
		require.ErrorAs(t, err, &nstErr)
		assert.Equal(t, core.ResourceType("workspace"), nstErr.Type)
	})

	t.Run("types", func(t *testing.T) {
		assert.Equal(t, []core.ResourceType{core.ResourceTypeUser}, reg.Types())
	})
}
