package notifications

import (
	"context"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/observability"
)

// LoggingNotifier writes notifications to the structured log instead of an
// external service. It is the default sink when no feeds service is
// configured, and keeps transitions observable in development.
type LoggingNotifier struct {
	log *observability.Logger
}

// NewLoggingNotifier creates a logging notifier.
func NewLoggingNotifier(log *observability.Logger) *LoggingNotifier {
	return &LoggingNotifier{log: log}
}

func (l *LoggingNotifier) requestLog(targets []core.UserName, r *core.GroupRequest) *observability.Logger {
	return l.log.WithFields(map[string]interface{}{
		"request_id": string(r.ID),
		"group_id":   string(r.GroupID),
		"requester":  string(r.Requester),
		"targets":    userStrings(targets),
	})
}

// Notify logs a new request.
func (l *LoggingNotifier) Notify(ctx context.Context, targets []core.UserName,
	g *core.Group, r *core.GroupRequest) {
	l.requestLog(targets, r).Info("request created")
}

// Cancel logs a notification revocation.
func (l *LoggingNotifier) Cancel(ctx context.Context, id core.RequestID) {
	l.log.WithField("request_id", string(id)).Info("request notifications revoked")
}

// Deny logs a denial.
func (l *LoggingNotifier) Deny(ctx context.Context, targets []core.UserName, r *core.GroupRequest) {
	l.requestLog(targets, r).Info("request denied")
}

// Accept logs an acceptance.
func (l *LoggingNotifier) Accept(ctx context.Context, targets []core.UserName, r *core.GroupRequest) {
	l.requestLog(targets, r).Info("request accepted")
}

// AddResource logs a direct resource addition.
func (l *LoggingNotifier) AddResource(ctx context.Context, user core.UserName,
	targets []core.UserName, id core.GroupID, t core.ResourceType, rid core.ResourceID) {
	l.log.WithFields(map[string]interface{}{
		"group_id":      string(id),
		"resource_type": string(t),
		"resource":      string(rid),
		"added_by":      string(user),
	}).Info("resource added")
}

var _ Notifier = (*LoggingNotifier)(nil)
