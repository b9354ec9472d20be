package backend

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

	"connectkids/internal/model"
)

const maxErrorBody = 512

// HTTPClient calls the hosted data service over its REST API.
type HTTPClient struct {
	baseURL  string
	loginURL string
	http     *http.Client
}

// NewHTTPClient builds a client for baseURL. loginURL is the hosted login
// page; the return address is passed as from_url.
func NewHTTPClient(baseURL, loginURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		loginURL: loginURL,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Me(ctx context.Context, token string) (model.User, error) {
	var user model.User
	if token == "" {
		return user, ErrUnauthenticated
	}
	err := c.do(ctx, "auth.me", http.MethodGet, "/auth/me", token, nil, &user)
	return user, err
}

func (c *HTTPClient) UpdateMe(ctx context.Context, token string, update model.ProfileUpdate) (model.User, error) {
	var user model.User
	if token == "" {
		return user, ErrUnauthenticated
	}
	err := c.do(ctx, "auth.updateMe", http.MethodPut, "/auth/me", token, update, &user)
	return user, err
}

func (c *HTTPClient) LoginURL(returnURL string) string {
	u, err := url.Parse(c.loginURL)
	if err != nil {
		return c.loginURL
	}
	q := u.Query()
	q.Set("from_url", returnURL)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *HTTPClient) CreateOpportunity(ctx context.Context, token string, d model.Draft) (model.Opportunity, error) {
	var rec model.Opportunity
	err := c.do(ctx, "Opportunity.create", http.MethodPost, "/entities/Opportunity", token, d, &rec)
	return rec, err
}

func (c *HTTPClient) ListOpportunities(ctx context.Context, token string) ([]model.Opportunity, error) {
	var recs []model.Opportunity
	err := c.do(ctx, "Opportunity.list", http.MethodGet, "/entities/Opportunity?sort=-created_date", token, nil, &recs)
	return recs, err
}

func (c *HTTPClient) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || (resp.StatusCode == http.StatusForbidden && op == "auth.me") {
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
