package notifications

import (
	"context"

	"github.com/kbase/groups-sub003/pkg/core"
)

// Notifier is the notification sink capability. Implementations must be
// best-effort: all methods return nothing and must not block the caller
// beyond a bounded delivery timeout.
type Notifier interface {
	// Notify announces a newly created request to its targets, the
	// invitee for invites or the group administrators for requests.
	Notify(ctx context.Context, targets []core.UserName, g *core.Group, r *core.GroupRequest)

	// Cancel revokes any pending notification for the request, keyed by
	// request ID.
	Cancel(ctx context.Context, id core.RequestID)

	// Deny announces a denied request to the targets.
	Deny(ctx context.Context, targets []core.UserName, r *core.GroupRequest)

	// Accept announces an accepted request to the targets.
	Accept(ctx context.Context, targets []core.UserName, r *core.GroupRequest)

	// AddResource announces a direct resource addition that bypassed the
	// request flow.
	AddResource(ctx context.Context, user core.UserName, targets []core.UserName,
		id core.GroupID, t core.ResourceType, rid core.ResourceID)
}
