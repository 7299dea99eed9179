package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/observability"
)

// FeedsNotifier delivers notifications to an external feeds service over
// HTTP. Deliveries run in their own goroutine with a bounded timeout;
// failures are logged, never returned.
type FeedsNotifier struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *observability.Logger
	timeout    time.Duration
}

// FeedsConfig configures the feeds notifier.
type FeedsConfig struct {
	// BaseURL is the root of the feeds service API.
	BaseURL string
	// Token authenticates this service to the feeds service.
	Token string
	// Timeout bounds each delivery. Defaults to 10 seconds.
	Timeout time.Duration
}

// NewFeedsNotifier creates a feeds notifier.
func NewFeedsNotifier(cfg FeedsConfig, log *observability.Logger) (*FeedsNotifier, error) {
	if cfg.BaseURL == "" {
		return nil, &core.MissingParameterError{Param: "feeds service URL"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FeedsNotifier{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		timeout:    timeout,
	}, nil
}

const notificationPath = "/api/V1/notification"

// notification is the feeds service wire format. The external key carries
// the request ID so a cancel can revoke the original notification.
type notification struct {
	Targets     []string `json:"targets"`
	Verb        string   `json:"verb"`
	Level       string   `json:"level"`
	Source      string   `json:"source"`
	ExternalKey string   `json:"external_key,omitempty"`
	Object      struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"object"`
	Context map[string]string `json:"context,omitempty"`
	Expires int64             `json:"expires,omitempty"`
}

func requestNotification(targets []core.UserName, r *core.GroupRequest, verb, level string) notification {
	n := notification{
		Targets:     userStrings(targets),
		Verb:        verb,
		Level:       level,
		Source:      "groupsservice",
		ExternalKey: string(r.ID),
		Context: map[string]string{
			"groupid":      string(r.GroupID),
			"requester":    string(r.Requester),
			"resourcetype": string(r.ResourceType),
			"resource":     string(r.Resource.ID),
		},
	}
	n.Object.ID = string(r.ID)
	n.Object.Type = "request"
	return n
}

// Notify announces a new request. The notification expires with the
// request so stale invitations disappear from feeds on their own.
func (f *FeedsNotifier) Notify(ctx context.Context, targets []core.UserName,
	g *core.Group, r *core.GroupRequest) {
	n := requestNotification(targets, r, "request", "request")
	n.Expires = r.ExpiresAt.UnixMilli()
	f.post(notificationPath, n)
}

// Cancel revokes notifications carrying the request ID as external key.
func (f *FeedsNotifier) Cancel(ctx context.Context, id core.RequestID) {
	body := map[string]interface{}{
		"external_keys": []string{string(id)},
		"source":        "groupsservice",
	}
	f.post("/api/V1/notifications/expire", body)
}

// Deny announces a denial to the targets.
func (f *FeedsNotifier) Deny(ctx context.Context, targets []core.UserName, r *core.GroupRequest) {
	if len(targets) == 0 {
		return
	}
	f.post(notificationPath, requestNotification(targets, r, "reject", "alert"))
}

// Accept announces an acceptance to the targets.
func (f *FeedsNotifier) Accept(ctx context.Context, targets []core.UserName, r *core.GroupRequest) {
	if len(targets) == 0 {
		return
	}
	f.post(notificationPath, requestNotification(targets, r, "accept", "alert"))
}

// AddResource announces a direct resource addition.
func (f *FeedsNotifier) AddResource(ctx context.Context, user core.UserName,
	targets []core.UserName, id core.GroupID, t core.ResourceType, rid core.ResourceID) {
	if len(targets) == 0 {
		return
	}
	n := notification{
		Targets: userStrings(targets),
		Verb:    "updated",
		Level:   "alert",
		Source:  "groupsservice",
		Context: map[string]string{
			"groupid":      string(id),
			"resourcetype": string(t),
			"resource":     string(rid),
			"addedby":      string(user),
		},
	}
	n.Object.ID = string(id)
	n.Object.Type = "group"
	f.post(notificationPath, n)
}

// post fires the delivery in the background. The caller's context is not
// used: a canceled inbound request must not cancel an already committed
// transition's notification.
func (f *FeedsNotifier) post(path string, body interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		payload, err := json.Marshal(body)
		if err != nil {
			f.log.WithError(err).Error("failed to marshal notification")
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			f.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			f.log.WithError(err).Error("failed to create notification request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if f.token != "" {
			req.Header.Set("Authorization", f.token)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			f.log.WithError(err).Error("notification delivery failed")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			f.log.WithField("status", resp.StatusCode).
				Error(fmt.Sprintf("feeds service rejected notification on %s", path))
		}
	}()
}

func userStrings(users []core.UserName) []string {
	result := make([]string, len(users))
	for i, u := range users {
		result[i] = string(u)
	}
	return result
}

var _ Notifier = (*FeedsNotifier)(nil)
