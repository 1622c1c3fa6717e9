package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/listling/listling/internal/models"
)

// Client is the HTTP implementation of Layer against the list service.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

var _ Layer = (*Client)(nil)

// New creates a remote client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Create implements Layer. The document keeps its client-generated id.
func (c *Client) Create(ctx context.Context, list models.List) error {
	return c.do(ctx, "POST", "/v1/lists", list, nil)
}

// Update implements Layer.
func (c *Client) Update(ctx context.Context, list models.List) error {
	return c.do(ctx, "PUT", "/v1/lists/"+url.PathEscape(list.ID), list, nil)
}

// Delete implements Layer.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/v1/lists/"+url.PathEscape(id), nil, nil)
}

// Get implements Layer.
func (c *Client) Get(ctx context.Context, id string) (*models.List, error) {
	var list models.List
	if err := c.do(ctx, "GET", "/v1/lists/"+url.PathEscape(id), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListVisible implements Layer. The service filters by its member id index.
func (c *Client) ListVisible(ctx context.Context, principalID string) ([]models.List, error) {
	params := url.Values{}
	params.Set("member", principalID)
	var lists []models.List
	if err := c.do(ctx, "GET", "/v1/lists?"+params.Encode(), nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// LookupUserByEmail implements Layer.
func (c *Client) LookupUserByEmail(ctx context.Context, email string) (*User, error) {
	params := url.Values{}
	params.Set("email", email)
	var user User
	err := c.do(ctx, "GET", "/v1/users/lookup?"+params.Encode(), nil, &user)
	if err != nil {
		// The directory reports a missing address as 404.
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return nil, err
	}
	return &user, nil
}

// AddMember implements Layer.
func (c *Client) AddMember(ctx context.Context, listID string, member models.Member) error {
	return c.do(ctx, "POST", fmt.Sprintf("/v1/lists/%s/members", url.PathEscape(listID)), member, nil)
}

// --- HTTP plumbing ---

// apiError is the standard error body from the service.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// Transport-level failure: connectivity, DNS, timeout.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return c.statusError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) statusError(status int, body []byte) error {
	var apiErr apiError
	msg := ""
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
		msg = apiErr.Message
		if apiErr.Code == "already_member" {
			return fmt.Errorf("%w: %s", ErrAlreadyMember, msg)
		}
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrAlreadyMember, msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, status, msg)
	default:
		if msg != "" {
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", status, string(body))
	}
}
