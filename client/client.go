// Package client is a typed HTTP client for the TutorLink API. It is
// the only layer that speaks HTTP on behalf of the session manager and
// classifies every failure into the Kind taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Roles []Role `json:"roles"`
}

func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type TutorListing struct {
	TutorID  string   `json:"tutorId"`
	Name     string   `json:"name"`
	Bio      string   `json:"bio"`
	Subjects []string `json:"subjects"`
}

type TutorProfile struct {
	Bio          string   `json:"bio"`
	Subjects     []string `json:"subjects"`
	Availability []string `json:"availability"`
}

type HelpRequest struct {
	ID             string   `json:"id"`
	StudentID      string   `json:"studentId"`
	StudentName    string   `json:"studentName"`
	Subject        string   `json:"subject"`
	Description    string   `json:"description"`
	PreferredTimes []string `json:"preferredTimes"`
	Status         string   `json:"status"`
	TutorID        *string  `json:"tutorId,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
}

type NewHelpRequest struct {
	Subject        string   `json:"subject"`
	Description    string   `json:"description"`
	PreferredTimes []string `json:"preferredTimes"`
}

const (
	defaultTimeout = 15 * time.Second
	retryAttempts  = 2
	retryBackoff   = 250 * time.Millisecond
)

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken attaches the bearer token to all subsequent requests. An
// empty token detaches it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var result AuthResult
	err := c.post(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	return result, err
}

func (c *Client) Register(ctx context.Context, name, email, password string, role Role) (AuthResult, error) {
	var result AuthResult
	err := c.post(ctx, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
		"role":     string(role),
	}, &result)
	return result, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	err := c.get(ctx, "/auth/me", nil, &user)
	return user, err
}

// Logout asks the server to revoke the current token. Best effort: the
// session manager clears local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil, nil)
}

func (c *Client) SearchTutors(ctx context.Context, subject string) ([]TutorListing, error) {
	query := url.Values{}
	if subject != "" {
		query.Set("subject", subject)
	}
	var listings []TutorListing
	err := c.get(ctx, "/tutors/search", query, &listings)
	return listings, err
}

func (c *Client) UpsertTutorProfile(ctx context.Context, profile TutorProfile) error {
	return c.post(ctx, "/tutors/profile", profile, nil)
}

func (c *Client) CreateHelpRequest(ctx context.Context, request NewHelpRequest) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/help-requests", request, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) ListMyRequests(ctx context.Context) ([]HelpRequest, error) {
	query := url.Values{"mine": {"true"}}
	var requests []HelpRequest
	err := c.get(ctx, "/help-requests", query, &requests)
	return requests, err
}

func (c *Client) ListOpenRequests(ctx context.Context, subject string) ([]HelpRequest, error) {
	query := url.Values{"status": {"open"}}
	if subject != "" {
		query.Set("subject", subject)
	}
	var requests []HelpRequest
	err := c.get(ctx, "/help-requests", query, &requests)
	return requests, err
}

func (c *Client) AcceptRequest(ctx context.Context, requestID string) error {
	return c.patch(ctx, "/help-requests/"+requestID, map[string]string{"status": "matched"})
}

func (c *Client) DeclineRequest(ctx context.Context, requestID string) error {
	return c.patch(ctx, "/help-requests/"+requestID, map[string]string{"status": "closed"})
}

// get retries network failures with a bounded constant backoff. Only
// idempotent reads go through here; mutations are never retried.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewConstant(retryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err != nil && IsNetwork(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, payload, out)
}

func (c *Client) patch(ctx context.Context, path string, payload interface{}) error {
	return c.do(ctx, http.MethodPatch, path, nil, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return networkError(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &errBody)
		return classifyStatus(resp.StatusCode, errBody.Error)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return networkError(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
