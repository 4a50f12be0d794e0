package toggl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"toggl-companion/internal/domain"
	"toggl-companion/internal/ports"
)

// Client implements ports.Gateway using the Toggl Track API v9.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger

	mu       sync.RWMutex
	apiToken string
}

func NewClient(baseURL, apiToken string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.track.toggl.com"
	}
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// SetCredential swaps the API token; used on profile switch and
// re-authentication.
func (c *Client) SetCredential(apiToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiToken = apiToken
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiToken
}

// CreateEntry starts a new entry.
// Toggl v9: POST /api/v9/workspaces/{ws}/time_entries
func (c *Client) CreateEntry(ctx context.Context, workspaceID int64, fields domain.TimeEntry) (domain.TimeEntry, error) {
	path := fmt.Sprintf("/api/v9/workspaces/%d/time_entries", workspaceID)
	body := createBody(workspaceID, fields)
	var raw rawTimeEntry
	if err := c.do(ctx, http.MethodPost, path, nil, body, &raw); err != nil {
		return domain.TimeEntry{}, err
	}
	return raw.toDomain(), nil
}

// UpdateEntry applies a partial edit.
// Toggl v9: PUT /api/v9/workspaces/{ws}/time_entries/{id}
func (c *Client) UpdateEntry(ctx context.Context, workspaceID, id int64, delta domain.EntryDelta) (domain.TimeEntry, error) {
	path := fmt.Sprintf("/api/v9/workspaces/%d/time_entries/%d", workspaceID, id)
	var raw rawTimeEntry
	if err := c.do(ctx, http.MethodPut, path, nil, updateBody(delta), &raw); err != nil {
		return domain.TimeEntry{}, err
	}
	return raw.toDomain(), nil
}

// StopEntry stops a running entry at the server's clock.
// Toggl v9: PATCH /api/v9/workspaces/{ws}/time_entries/{id}/stop
func (c *Client) StopEntry(ctx context.Context, workspaceID, id int64) (domain.TimeEntry, error) {
	path := fmt.Sprintf("/api/v9/workspaces/%d/time_entries/%d/stop", workspaceID, id)
	var raw rawTimeEntry
	if err := c.do(ctx, http.MethodPatch, path, nil, nil, &raw); err != nil {
		return domain.TimeEntry{}, err
	}
	return raw.toDomain(), nil
}

// DeleteEntry removes an entry.
// Toggl v9: DELETE /api/v9/workspaces/{ws}/time_entries/{id}
func (c *Client) DeleteEntry(ctx context.Context, workspaceID, id int64) error {
	path := fmt.Sprintf("/api/v9/workspaces/%d/time_entries/%d", workspaceID, id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// FetchRecent fetches entries started in [since, now]. The /me feed is not
// scoped to a workspace; callers filter.
// Toggl v9: GET /api/v9/me/time_entries?start_date=...&end_date=...
func (c *Client) FetchRecent(ctx context.Context, workspaceID int64, since time.Time) ([]domain.TimeEntry, error) {
	q := url.Values{}
	q.Set("start_date", since.UTC().Format(time.RFC3339))
	q.Set("end_date", time.Now().UTC().Format(time.RFC3339))
	var raw []rawTimeEntry
	if err := c.do(ctx, http.MethodGet, "/api/v9/me/time_entries", q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.TimeEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// FetchRunning fetches the currently running entry, independent of any time
// window; the body is null when nothing is running.
// Toggl v9: GET /api/v9/me/time_entries/current
func (c *Client) FetchRunning(ctx context.Context, workspaceID int64) (*domain.TimeEntry, error) {
	var raw *rawTimeEntry
	if err := c.do(ctx, http.MethodGet, "/api/v9/me/time_entries/current", nil, nil, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	e := raw.toDomain()
	return &e, nil
}

// ListProjects fetches projects in the workspace.
// Toggl v9: GET /api/v9/workspaces/{ws}/projects
func (c *Client) ListProjects(ctx context.Context, workspaceID int64) ([]domain.Project, error) {
	path := fmt.Sprintf("/api/v9/workspaces/%d/projects", workspaceID)
	var raw []rawProject
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(raw))
	for _, p := range raw {
		var clientID *int64
		if p.ClientID != nil {
			id := *p.ClientID
			clientID = &id
		}
		out = append(out, domain.Project{
			ID:          p.ID,
			WorkspaceID: p.WorkspaceID,
			Name:        p.Name,
			Active:      p.Active,
			Private:     p.Private,
			Color:       p.Color,
			ClientID:    clientID,
			At:          p.At,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token := c.token()
	if token == "" {
		return &ports.GatewayError{Kind: ports.Unauthorized, Message: "missing api token"}
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("toggl: parse base url: %w", err)
	}
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("toggl: encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("toggl: build request: %w", err)
	}
	// Basic auth: token:api_token
	auth := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", token, "api_token")))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ports.GatewayError{Kind: ports.Transient, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ports.GatewayError{Kind: ports.Transient, Message: "decode response: " + err.Error(), Err: err}
	}
	return nil
}

// statusError maps an HTTP status to the gateway error taxonomy: 401 ends
// the session, timeouts/throttling/server trouble are retryable, and the
// remaining 4xx carry the server's message verbatim as validation failures.
func statusError(status int, message string) error {
	kind := ports.Validation
	switch {
	case status == http.StatusUnauthorized:
		kind = ports.Unauthorized
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		kind = ports.Transient
	}
	return &ports.GatewayError{Kind: kind, Status: status, Message: message}
}

func createBody(workspaceID int64, e domain.TimeEntry) map[string]any {
	body := map[string]any{
		"created_with": "toggl-companion",
		"description":  e.Description,
		"workspace_id": workspaceID,
		"start":        e.Start.UTC().Format(time.RFC3339),
		"billable":     e.Billable,
	}
	if e.Stop != nil {
		body["stop"] = e.Stop.UTC().Format(time.RFC3339)
		body["duration"] = int64(e.Stop.Sub(e.Start) / time.Second)
	} else {
		body["duration"] = -1
	}
	if e.ProjectID != nil {
		body["project_id"] = *e.ProjectID
	}
	if len(e.Tags) > 0 {
		body["tags"] = e.Tags
	}
	return body
}

// updateBody encodes only the touched fields; an explicit null stop reopens
// the entry, which JSON omitempty cannot express.
func updateBody(d domain.EntryDelta) map[string]any {
	body := map[string]any{}
	if d.Description != nil {
		body["description"] = *d.Description
	}
	if d.Start != nil {
		body["start"] = d.Start.UTC().Format(time.RFC3339)
	}
	if d.SetStop {
		if d.Stop != nil {
			body["stop"] = d.Stop.UTC().Format(time.RFC3339)
		} else {
			body["stop"] = nil
			body["duration"] = -1
		}
	}
	if d.SetProject {
		if d.ProjectID != nil {
			body["project_id"] = *d.ProjectID
		} else {
			body["project_id"] = nil
		}
	}
	if d.SetTags {
		body["tags"] = d.Tags
	}
	if d.Billable != nil {
		body["billable"] = *d.Billable
	}
	return body
}

// rawTimeEntry mirrors the JSON from Toggl v9.
type rawTimeEntry struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	ProjectID   *int64     `json:"project_id"`
	WorkspaceID int64      `json:"workspace_id"`
	Tags        []string   `json:"tags"`
	Billable    bool       `json:"billable"`
	Start       time.Time  `json:"start"`
	Stop        *time.Time `json:"stop"`
	Duration    int64      `json:"duration"`
}

func (r rawTimeEntry) toDomain() domain.TimeEntry {
	var stop *time.Time
	if r.Stop != nil {
		s := *r.Stop
		stop = &s
	}
	var project *int64
	if r.ProjectID != nil {
		p := *r.ProjectID
		project = &p
	}
	return domain.TimeEntry{
		ID:          r.ID,
		Description: r.Description,
		ProjectID:   project,
		WorkspaceID: r.WorkspaceID,
		Tags:        r.Tags,
		Billable:    r.Billable,
		Start:       r.Start,
		Stop:        stop,
		DurationSec: r.Duration,
	}
}

type rawProject struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	Private     bool      `json:"is_private"`
	Color       string    `json:"color"`
	ClientID    *int64    `json:"client_id"`
	At          time.Time `json:"at"`
}
