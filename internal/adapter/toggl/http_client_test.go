package toggl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toggl-companion/internal/domain"
	"toggl-companion/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captured struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func newTestClient(t *testing.T, status int, respBody string) (*Client, *captured) {
	t.Helper()
	seen := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.method = r.Method
		seen.path = r.URL.Path
		seen.query = r.URL.RawQuery
		seen.auth = r.Header.Get("Authorization")
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &seen.body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret-token", testLogger()), seen
}

func TestCreateEntrySendsV9Payload(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c, seen := newTestClient(t, http.StatusOK, `{"id":555,"description":"write docs","workspace_id":42,"start":"2026-03-02T09:00:00Z","duration":-1}`)

	project := int64(7)
	entry := domain.TimeEntry{
		Description: "write docs",
		ProjectID:   &project,
		WorkspaceID: 42,
		Tags:        []string{"docs"},
		Start:       start,
		DurationSec: -1,
	}
	out, err := c.CreateEntry(context.Background(), 42, entry)
	require.NoError(t, err)
	assert.Equal(t, int64(555), out.ID)
	assert.Nil(t, out.Stop)

	assert.Equal(t, http.MethodPost, seen.method)
	assert.Equal(t, "/api/v9/workspaces/42/time_entries", seen.path)
	assert.Equal(t, "toggl-companion", seen.body["created_with"])
	assert.Equal(t, "write docs", seen.body["description"])
	assert.Equal(t, "2026-03-02T09:00:00Z", seen.body["start"])
	assert.Equal(t, float64(-1), seen.body["duration"], "a running entry is created with duration -1")
	assert.Equal(t, float64(7), seen.body["project_id"])
}

func TestCreateEntryUsesBasicAuthTokenScheme(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `{"id":1,"start":"2026-03-02T09:00:00Z"}`)
	_, err := c.CreateEntry(context.Background(), 42, domain.TimeEntry{Start: time.Now()})
	require.NoError(t, err)
	// base64("secret-token:api_token")
	assert.Equal(t, "Basic c2VjcmV0LXRva2VuOmFwaV90b2tlbg==", seen.auth)
}

func TestUpdateEntrySendsOnlyTouchedFields(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `{"id":555,"description":"renamed","start":"2026-03-02T09:00:00Z"}`)

	_, err := c.UpdateEntry(context.Background(), 42, 555, domain.SetDescription("renamed"))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, seen.method)
	assert.Equal(t, "/api/v9/workspaces/42/time_entries/555", seen.path)
	assert.Equal(t, map[string]any{"description": "renamed"}, seen.body)
}

func TestUpdateEntryEncodesExplicitNullStop(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `{"id":555,"start":"2026-03-02T09:00:00Z","duration":-1}`)

	_, err := c.UpdateEntry(context.Background(), 42, 555, domain.SetStop(nil))
	require.NoError(t, err)
	stop, present := seen.body["stop"]
	require.True(t, present, "reopening an entry needs an explicit null stop")
	assert.Nil(t, stop)
	assert.Equal(t, float64(-1), seen.body["duration"])
}

func TestStopEntryUsesPatch(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `{"id":555,"start":"2026-03-02T09:00:00Z","stop":"2026-03-02T10:00:00Z","duration":3600}`)

	out, err := c.StopEntry(context.Background(), 42, 555)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, seen.method)
	assert.Equal(t, "/api/v9/workspaces/42/time_entries/555/stop", seen.path)
	require.NotNil(t, out.Stop)
	assert.Equal(t, int64(3600), out.DurationSec)
}

func TestDeleteEntry(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, ``)
	require.NoError(t, c.DeleteEntry(context.Background(), 42, 555))
	assert.Equal(t, http.MethodDelete, seen.method)
	assert.Equal(t, "/api/v9/workspaces/42/time_entries/555", seen.path)
}

func TestFetchRunningNullBodyMeansNothingRunning(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `null`)
	out, err := c.FetchRunning(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "/api/v9/me/time_entries/current", seen.path)
}

func TestFetchRecentSetsDateWindow(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `[{"id":1,"description":"a","workspace_id":42,"start":"2026-03-02T09:00:00Z","stop":"2026-03-02T10:00:00Z","duration":3600}]`)

	since := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	out, err := c.FetchRecent(context.Background(), 42, since)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Description)

	assert.Equal(t, "/api/v9/me/time_entries", seen.path)
	assert.Contains(t, seen.query, "start_date=2026-02-16T00%3A00%3A00Z")
	assert.Contains(t, seen.query, "end_date=")
}

func TestListProjects(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `[
		{"id":7,"workspace_id":42,"name":"Deep Work","active":true,"is_private":false,"color":"#06aaf5","client_id":3,"at":"2026-01-15T08:00:00Z"},
		{"id":9,"workspace_id":42,"name":"Writing","active":false,"color":"#c9806b","client_id":null,"at":"2026-02-01T08:00:00Z"}
	]`)

	out, err := c.ListProjects(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, seen.method)
	assert.Equal(t, "/api/v9/workspaces/42/projects", seen.path)

	require.Len(t, out, 2)
	assert.Equal(t, int64(7), out[0].ID)
	assert.Equal(t, "Deep Work", out[0].Name)
	assert.True(t, out[0].Active)
	assert.Equal(t, "#06aaf5", out[0].Color)
	require.NotNil(t, out[0].ClientID)
	assert.Equal(t, int64(3), *out[0].ClientID)
	assert.Nil(t, out[1].ClientID)
	assert.False(t, out[1].Active)
}

func TestStatusErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		kind   ports.ErrorKind
	}{
		{http.StatusUnauthorized, ports.Unauthorized},
		{http.StatusRequestTimeout, ports.Transient},
		{http.StatusTooManyRequests, ports.Transient},
		{http.StatusInternalServerError, ports.Transient},
		{http.StatusBadGateway, ports.Transient},
		{http.StatusBadRequest, ports.Validation},
		{http.StatusForbidden, ports.Validation},
		{http.StatusNotFound, ports.Validation},
	}
	for _, tc := range tests {
		c, _ := newTestClient(t, tc.status, `"entry validation failed"`)
		err := c.DeleteEntry(context.Background(), 42, 555)
		require.Error(t, err)
		assert.Equal(t, tc.kind, ports.KindOf(err), "status %d", tc.status)
	}
}

func TestValidationErrorCarriesServerMessage(t *testing.T) {
	c, _ := newTestClient(t, http.StatusBadRequest, `"description too long"`)
	_, err := c.UpdateEntry(context.Background(), 42, 555, domain.SetDescription("x"))
	require.Error(t, err)
	var gerr *ports.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Message, "description too long")
}

func TestMissingTokenFailsBeforeTheWire(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", testLogger())
	_, err := c.FetchRunning(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, ports.IsUnauthorized(err))
}

func TestSetCredentialTakesEffect(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `null`)
	c.SetCredential("rotated")
	_, err := c.FetchRunning(context.Background(), 42)
	require.NoError(t, err)
	// base64("rotated:api_token")
	assert.Equal(t, "Basic cm90YXRlZDphcGlfdG9rZW4=", seen.auth)
}
