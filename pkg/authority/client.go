package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kbase/groups-sub003/pkg/core"
)

// HTTPHandler is a Handler backed by an external authority service speaking
// the authority HTTP protocol: GET /resources/{id}/admins,
// GET /admins/{user}/resources, POST /permissions and so on. Workspace and
// catalog authorities are both bound through this client, differing only in
// base URL and resource type.
type HTTPHandler struct {
	resourceType core.ResourceType
	baseURL      string
	token        string
	httpClient   *http.Client
}

// HTTPHandlerConfig configures an HTTP-backed authority handler.
type HTTPHandlerConfig struct {
	// ResourceType is the type this handler serves, e.g. "workspace".
	ResourceType core.ResourceType
	// BaseURL is the root of the authority API.
	BaseURL string
	// Token authenticates this service to the authority, if required.
	Token string
	// Timeout bounds each authority call. Defaults to 10 seconds.
	Timeout time.Duration
}

// NewHTTPHandler creates an HTTP-backed authority handler.
func NewHTTPHandler(cfg HTTPHandlerConfig) (*HTTPHandler, error) {
	if cfg.ResourceType == "" {
		return nil, &core.MissingParameterError{Param: "resource type"}
	}
	if cfg.BaseURL == "" {
		return nil, &core.MissingParameterError{Param: "authority URL"}
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid authority URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPHandler{
		resourceType: cfg.ResourceType,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

func (h *HTTPHandler) handlerErr(err error) error {
	return &core.ResourceHandlerError{Type: h.resourceType, Err: err}
}

// get runs a GET against the authority and decodes the JSON response into
// dest. A 404 maps to core.NoSuchResourceError using the given resource ID;
// any other non-200 answer is a handler error.
func (h *HTTPHandler) get(ctx context.Context, path string, id core.ResourceID, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return h.handlerErr(err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return h.handlerErr(fmt.Errorf("authority unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &core.NoSuchResourceError{Type: h.resourceType, ID: id}
	}
	if resp.StatusCode != http.StatusOK {
		return h.handlerErr(fmt.Errorf("authority returned status %d: %s",
			resp.StatusCode, readBodyPrefix(resp.Body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return h.handlerErr(fmt.Errorf("failed to decode authority response: %w", err))
	}
	return nil
}

// IsAdministrator asks the authority whether the user administers the
// resource.
func (h *HTTPHandler) IsAdministrator(ctx context.Context, id core.ResourceID, user core.UserName) (bool, error) {
	admins, err := h.GetAdministrators(ctx, id)
	if err != nil {
		return false, err
	}
	for _, a := range admins {
		if a == user {
			return true, nil
		}
	}
	return false, nil
}

// GetAdministratedResources lists the administrative IDs the user holds
// admin rights over.
func (h *HTTPHandler) GetAdministratedResources(ctx context.Context, user core.UserName) ([]core.ResourceAdministrativeID, error) {
	var body struct {
		Resources []string `json:"resources"`
	}
	path := "/admins/" + url.PathEscape(string(user)) + "/resources"
	if err := h.get(ctx, path, "", &body); err != nil {
		return nil, err
	}
	result := make([]core.ResourceAdministrativeID, len(body.Resources))
	for i, r := range body.Resources {
		result[i] = core.ResourceAdministrativeID(r)
	}
	return result, nil
}

// GetAdministrators lists the administrators of the resource.
func (h *HTTPHandler) GetAdministrators(ctx context.Context, id core.ResourceID) ([]core.UserName, error) {
	var body struct {
		Admins []string `json:"admins"`
	}
	path := "/resources/" + url.PathEscape(string(id)) + "/admins"
	if err := h.get(ctx, path, id, &body); err != nil {
		return nil, err
	}
	result := make([]core.UserName, len(body.Admins))
	for i, a := range body.Admins {
		result[i] = core.UserName(a)
	}
	return result, nil
}

// GetResourceInformation describes the given resources as visible to the
// user at the given access level.
func (h *HTTPHandler) GetResourceInformation(ctx context.Context, user core.UserName,
	ids []core.ResourceID, level AccessLevel) ([]ResourceInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"user":   string(user),
		"ids":    strs,
		"access": string(level),
	})
	if err != nil {
		return nil, h.handlerErr(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/resources/info", bytes.NewReader(payload))
	if err != nil {
		return nil, h.handlerErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, h.handlerErr(fmt.Errorf("authority unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, h.handlerErr(fmt.Errorf("authority returned status %d: %s",
			resp.StatusCode, readBodyPrefix(resp.Body)))
	}

	var body struct {
		Resources []ResourceInfo `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, h.handlerErr(fmt.Errorf("failed to decode authority response: %w", err))
	}
	return body.Resources, nil
}

// SetReadPermission grants the user read access to the resource.
func (h *HTTPHandler) SetReadPermission(ctx context.Context, id core.ResourceID, user core.UserName) error {
	payload, err := json.Marshal(map[string]string{
		"resource": string(id),
		"user":     string(user),
		"access":   string(AccessRead),
	})
	if err != nil {
		return h.handlerErr(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/permissions", bytes.NewReader(payload))
	if err != nil {
		return h.handlerErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return h.handlerErr(fmt.Errorf("authority unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &core.NoSuchResourceError{Type: h.resourceType, ID: id}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return h.handlerErr(fmt.Errorf("authority returned status %d: %s",
			resp.StatusCode, readBodyPrefix(resp.Body)))
	}
	return nil
}

// GetDescriptor resolves a resource ID to its full descriptor.
func (h *HTTPHandler) GetDescriptor(ctx context.Context, id core.ResourceID) (core.ResourceDescriptor, error) {
	var body struct {
		AdministrativeID string `json:"administrative_id"`
		ID               string `json:"id"`
	}
	path := "/resources/" + url.PathEscape(string(id))
	if err := h.get(ctx, path, id, &body); err != nil {
		return core.ResourceDescriptor{}, err
	}

	rid, err := core.NewResourceID(body.ID)
	if err != nil {
		return core.ResourceDescriptor{}, h.handlerErr(
			fmt.Errorf("authority returned an invalid resource ID: %w", err))
	}
	aid, err := core.NewResourceAdministrativeID(body.AdministrativeID)
	if err != nil {
		return core.ResourceDescriptor{}, h.handlerErr(
			fmt.Errorf("authority returned an invalid administrative ID: %w", err))
	}
	return core.NewResourceDescriptor(aid, rid), nil
}

func readBodyPrefix(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(data))
}

var _ Handler = (*HTTPHandler)(nil)
