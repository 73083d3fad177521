// Package smoke exercises the onboarding REST API end to end: health, login,
// application submission, the manager and HR dashboards and onboarding PDF
// generation. A failing step is recorded and the run continues.
package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dharsanguruparan/OnboardOps/internal/auth"
)

// Client talks to the onboarding API. Endpoint joins base URL and prefix.
type Client struct {
	endpoint func(path string) string
	http     *http.Client
}

// NewClient constructs a Client. endpoint is usually config.Config.Endpoint.
func NewClient(endpoint func(path string) string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Do sends a JSON request and returns the raw response body.
func (c *Client) Do(ctx context.Context, method, path, token string, body any) ([]byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	url := c.endpoint(path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, nil, &StatusError{Method: method, URL: url, Status: resp.StatusCode, Body: snippet}
	}
	return data, resp.Header, nil
}

// Session is the result of a login.
type Session struct {
	Token  string
	Claims *auth.Claims
}

// Login posts credentials to auth/login. The API has answered with "token",
// "access_token" and a nested "data.token" across versions; all are read.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	data, _, err := c.Do(ctx, http.MethodPost, "auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		Data        struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	token := firstNonEmpty(body.Token, body.AccessToken, body.Data.Token)
	if token == "" {
		return nil, fmt.Errorf("login response for %s carried no token", email)
	}
	s := &Session{Token: token}
	if claims, err := auth.ParseUnverified(token); err == nil {
		s.Claims = claims
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
