// Package plannerclient drives a planner conversation over the HTTP API: it sends turns,
// returns replies and refreshes the brief shortly after each reply.
package plannerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultRefreshDelay leaves the server time to finish its extraction pass.
const DefaultRefreshDelay = 3500 * time.Millisecond

// ErrNoSession is returned by calls that need Start to have succeeded.
var ErrNoSession = errors.New("plannerclient: session not started")

// Brief mirrors the brief served to its owner.
type Brief struct {
	Summary         *string  `json:"summary"`
	Goals           []string `json:"goals"`
	Features        []string `json:"features"`
	TargetAudience  *string  `json:"target_audience"`
	TechPreferences *string  `json:"tech_preferences"`
	Timeline        *string  `json:"timeline"`
	BudgetSignals   *string  `json:"budget_signals"`
	Industry        *string  `json:"industry"`
	Status          string   `json:"status"`
}

// Completeness is the server's progress estimate for a brief.
type Completeness struct {
	Score    int    `json:"score"`
	NextHint string `json:"next_hint,omitempty"`
}

// Message is one stored turn returned when a session resumes.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// BriefUpdate is delivered to OnBrief after each scheduled refresh.
type BriefUpdate struct {
	Brief        *Brief
	Completeness *Completeness
	Err          error
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status      int
	Message     string
	UserMessage string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("planner api: %d %s", e.Status, e.Message)
}

// Client is safe for use by one conversation at a time.
type Client struct {
	BaseURL      string
	VisitorID    string
	HTTPClient   *http.Client
	RefreshDelay time.Duration
	OnBrief      func(BriefUpdate)

	mu        sync.Mutex
	sessionID string
	refresh   *time.Timer
}

// New returns a client for the API rooted at baseURL.
func New(baseURL, visitorID string) *Client {
	return &Client{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		VisitorID:    visitorID,
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
		RefreshDelay: DefaultRefreshDelay,
	}
}

// SessionID returns the current session, empty before Start.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start creates or resumes the visitor's session and returns its history and brief.
func (c *Client) Start(ctx context.Context) ([]Message, *Brief, error) {
	var resp struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
		Messages []Message `json:"messages"`
		Brief    *Brief    `json:"brief"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"visitor_id": c.VisitorID}, &resp); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.sessionID = resp.Session.ID
	c.mu.Unlock()
	return resp.Messages, resp.Brief, nil
}

// Send posts one turn and returns the reply. Without a session the turn is stateless.
// A brief refresh is scheduled after RefreshDelay; a newer Send replaces a pending one.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	sessionID := c.SessionID()
	body := map[string]string{"message": text}
	if sessionID != "" {
		body["session_id"] = sessionID
	}

	var resp struct {
		Reply string `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat", body, &resp); err != nil {
		return "", err
	}

	if sessionID != "" && c.OnBrief != nil {
		c.scheduleRefresh()
	}
	return resp.Reply, nil
}

// Brief fetches the session's brief; nil means none exists yet.
func (c *Client) Brief(ctx context.Context) (*Brief, *Completeness, error) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil, nil, ErrNoSession
	}

	var resp struct {
		Brief        *Brief        `json:"brief"`
		Completeness *Completeness `json:"completeness"`
	}
	path := "/api/brief?session_id=" + url.QueryEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Brief, resp.Completeness, nil
}

// Share records contact details, marks the brief shared and returns its public token.
func (c *Client) Share(ctx context.Context, email, name string) (string, error) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return "", ErrNoSession
	}

	var resp struct {
		ShareID string `json:"share_id"`
	}
	body := map[string]string{"session_id": sessionID, "email": email, "name": name}
	if err := c.do(ctx, http.MethodPatch, "/api/sessions", body, &resp); err != nil {
		return "", err
	}
	return resp.ShareID, nil
}

// Close cancels a pending refresh.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refresh != nil {
		c.refresh.Stop()
		c.refresh = nil
	}
}

func (c *Client) scheduleRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refresh != nil {
		c.refresh.Stop()
	}
	c.refresh = time.AfterFunc(c.RefreshDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b, score, err := c.Brief(ctx)
		c.OnBrief(BriefUpdate{Brief: b, Completeness: score, Err: err})
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error       string `json:"error"`
			UserMessage string `json:"userMessage"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Message = payload.Error
			apiErr.UserMessage = payload.UserMessage
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
