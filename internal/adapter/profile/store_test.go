package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
profiles:
  - name: work
    api_token: tok-work
    workspace_id: 42
    default_project_id: 7
    date_format: DD.MM.YYYY
    time_format: 24h
    week_start_day: monday
  - name: personal
    api_token: tok-personal
    workspace_id: 43
    time_format: 12h
    week_start_day: sunday
`)
	profiles, err := Load(path)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	work := profiles[0]
	assert.Equal(t, "work", work.Name)
	assert.Equal(t, "tok-work", work.APIToken)
	assert.Equal(t, int64(42), work.WorkspaceID)
	require.NotNil(t, work.DefaultProjectID)
	assert.Equal(t, int64(7), *work.DefaultProjectID)
	assert.Equal(t, "DD.MM.YYYY", work.DateFormat)
	assert.Equal(t, time.Monday, work.WeekStartDay)

	personal := profiles[1]
	assert.Nil(t, personal.DefaultProjectID)
	assert.Equal(t, time.Sunday, personal.WeekStartDay)
}

func TestLoadDefaultsWeekStartToMonday(t *testing.T) {
	path := writeCatalog(t, `
profiles:
  - name: work
    api_token: tok
    workspace_id: 42
`)
	profiles, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, profiles[0].WeekStartDay)
}

func TestLoadRejectsIncompleteProfiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "profiles:\n  - api_token: tok\n    workspace_id: 42\n"},
		{"missing token", "profiles:\n  - name: work\n    workspace_id: 42\n"},
		{"missing workspace", "profiles:\n  - name: work\n    api_token: tok\n"},
		{"bad weekday", "profiles:\n  - name: work\n    api_token: tok\n    workspace_id: 42\n    week_start_day: someday\n"},
		{"empty catalog", "profiles: []\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeCatalog(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
