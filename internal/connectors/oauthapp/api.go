package oauthapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

const (
	maxRetriesOn429 = 3
	maxBodySize     = 1 << 20 // 1 MiB
	userAgent       = "connector-hub"
)

// APIError is a non-2xx response from a provider API.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider api returned %d: %s (url=%s)", e.StatusCode, e.Message, e.URL)
	}
	return fmt.Sprintf("provider api returned %d (url=%s)", e.StatusCode, e.URL)
}

// Unauthorized reports whether the provider rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Request describes one provider API call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Form   url.Values
}

// Do sends the request, retrying rate-limited responses, and returns the body.
func Do(ctx context.Context, client *http.Client, r Request) ([]byte, error) {
	if client == nil {
		return nil, errors.New("http client is not configured")
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetriesOn429; attempt++ {
		var body io.Reader
		if r.Form != nil {
			body = strings.NewReader(r.Form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
		if err != nil {
			return nil, err
		}
		for k, vs := range r.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if r.Form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = newAPIError(r.URL, resp, respBody)
			if attempt == maxRetriesOn429 {
				return nil, lastErr
			}
			wait, ok := retryAfterDuration(resp.Header.Get("Retry-After"))
			if !ok {
				wait = time.Second
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, newAPIError(r.URL, resp, respBody)
		}
		return respBody, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("provider request failed")
}

// GetJSON issues an authenticated GET and decodes the JSON response into out.
func GetJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, out any) error {
	body, err := Do(ctx, client, Request{Method: http.MethodGet, URL: endpoint, Header: header})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// BearerHeader returns the Authorization header for an access token.
func BearerHeader(cred registry.Credential) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+cred.AccessToken)
	return h
}

// HealthFromError turns credential rejections into an unhealthy result and
// passes every other failure through.
func HealthFromError(err error) (registry.Health, error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Unauthorized() {
		return registry.Health{Healthy: false, Reason: "credentials rejected by provider"}, nil
	}
	return registry.Health{}, err
}

func newAPIError(reqURL string, resp *http.Response, body []byte) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    extractAPIErrorMessage(body),
		URL:        safeURL(reqURL),
	}
}

func extractAPIErrorMessage(body []byte) string {
	var payload struct {
		Errors  []string `json:"errors"`
		Error   any      `json:"error"`
		Message string   `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Errors) > 0 {
			if first := strings.TrimSpace(payload.Errors[0]); first != "" {
				return first
			}
		}
		if msg, ok := payload.Error.(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		return ""
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" || strings.HasPrefix(msg, "<!DOCTYPE html") || strings.HasPrefix(msg, "<html") {
		return ""
	}
	msg = strings.Join(strings.Fields(msg), " ")
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}

func safeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func retryAfterDuration(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
