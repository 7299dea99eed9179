package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kbase/groups-sub003/pkg/core"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Client talks to an identity authority over HTTP. Token validations are
// cached briefly so repeated calls with the same token do not hammer the
// authority.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokenCache *lru.LRU[Token, core.UserName]
	userCache  *lru.LRU[core.UserName, bool]
}

// ClientConfig configures the identity client.
type ClientConfig struct {
	// BaseURL is the root of the identity authority API.
	BaseURL string
	// Timeout bounds each authority call. Defaults to 10 seconds.
	Timeout time.Duration
	// CacheTTL bounds how long a token validation is reused. Defaults to
	// 5 minutes.
	CacheTTL time.Duration
	// CacheSize is the maximum number of cached validations. Defaults to
	// 2048.
	CacheSize int
}

// NewClient creates an identity client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &core.MissingParameterError{Param: "identity authority URL"}
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid identity authority URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 2048
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokenCache: lru.NewLRU[Token, core.UserName](size, nil, ttl),
		userCache:  lru.NewLRU[core.UserName, bool](size, nil, ttl),
	}, nil
}

type tokenResponse struct {
	User string `json:"user"`
}

type userResponse struct {
	Valid bool `json:"valid"`
}

// Validate resolves a token to a user name via the authority's token
// endpoint.
func (c *Client) Validate(ctx context.Context, token Token) (core.UserName, error) {
	if token == "" {
		return "", &core.AuthenticationError{Msg: "no token provided"}
	}
	if user, ok := c.tokenCache.Get(token); ok {
		return user, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/V2/token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Authorization", string(token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity authority unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &core.AuthenticationError{Msg: "invalid token"}
	default:
		return "", fmt.Errorf("identity authority returned status %d: %s",
			resp.StatusCode, readBodyPrefix(resp.Body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	user, err := core.NewUserName(tr.User)
	if err != nil {
		return "", fmt.Errorf("identity authority returned an invalid user name: %w", err)
	}

	c.tokenCache.Add(token, user)
	return user, nil
}

// IsValidUser asks the authority whether the user name exists.
func (c *Client) IsValidUser(ctx context.Context, user core.UserName) (bool, error) {
	if valid, ok := c.userCache.Get(user); ok {
		return valid, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/V2/users?list="+url.QueryEscape(string(user)), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create user request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("identity authority unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("identity authority returned status %d: %s",
			resp.StatusCode, readBodyPrefix(resp.Body))
	}

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return false, fmt.Errorf("failed to decode user response: %w", err)
	}

	// only positive answers are cached; a user may be created at any time
	if ur.Valid {
		c.userCache.Add(user, true)
	}
	return ur.Valid, nil
}

func readBodyPrefix(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(data))
}

var _ Authority = (*Client)(nil)
