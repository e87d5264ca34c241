package datadog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/open-sspm/connector-hub/internal/connectors/oauthapp"
)

const defaultTimeout = 30 * time.Second

// Client calls the Datadog API with an API key and application key pair.
type Client struct {
	BaseURL string
	APIKey  string
	AppKey  string
	HTTP    *http.Client
}

// New creates a new Datadog client. It validates that baseURL, apiKey, and appKey are provided.
func New(baseURL, apiKey, appKey string) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	apiKey = strings.TrimSpace(apiKey)
	appKey = strings.TrimSpace(appKey)

	if base == "" {
		return nil, errors.New("datadog base URL is required")
	}
	if apiKey == "" {
		return nil, errors.New("datadog api key is required")
	}
	if appKey == "" {
		return nil, errors.New("datadog app key is required")
	}

	return &Client{
		BaseURL: base,
		APIKey:  apiKey,
		AppKey:  appKey,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (c *Client) ensureClient() error {
	if c.BaseURL == "" {
		return errors.New("datadog base URL is required")
	}
	if c.APIKey == "" || c.AppKey == "" {
		return errors.New("datadog api key and app key are required")
	}
	if c.HTTP == nil {
		return errors.New("datadog http client is not configured")
	}
	return nil
}

func (c *Client) header() http.Header {
	h := make(http.Header)
	h.Set("DD-API-KEY", c.APIKey)
	h.Set("DD-APPLICATION-KEY", c.AppKey)
	return h
}

// ValidateKeys checks the API key against /api/v1/validate.
func (c *Client) ValidateKeys(ctx context.Context) (bool, error) {
	if err := c.ensureClient(); err != nil {
		return false, err
	}
	var payload struct {
		Valid bool `json:"valid"`
	}
	if err := oauthapp.GetJSON(ctx, c.HTTP, c.BaseURL+"/api/v1/validate", c.header(), &payload); err != nil {
		return false, err
	}
	return payload.Valid, nil
}

// CountUsers returns the organization's user total, which also proves the application key works.
func (c *Client) CountUsers(ctx context.Context) (int64, error) {
	if err := c.ensureClient(); err != nil {
		return 0, err
	}
	endpoint, err := c.endpoint("/api/v2/users", 1, 0)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Data []json.RawMessage `json:"data"`
		Meta struct {
			Page struct {
				TotalCount int64 `json:"total_count"`
			} `json:"page"`
		} `json:"meta"`
	}
	if err := oauthapp.GetJSON(ctx, c.HTTP, endpoint, c.header(), &payload); err != nil {
		return 0, err
	}
	if payload.Meta.Page.TotalCount > 0 {
		return payload.Meta.Page.TotalCount, nil
	}
	return int64(len(payload.Data)), nil
}

func (c *Client) endpoint(path string, pageSize, page int) (string, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		return "", errors.New("datadog base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := u.Query()
	q.Set("page[size]", strconv.Itoa(pageSize))
	q.Set("page[number]", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}
