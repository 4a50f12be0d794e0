package domain

import "time"

// Project represents a Toggl project in the domain layer.
type Project struct {
	ID          int64
	WorkspaceID int64
	Name        string
	Active      bool
	Private     bool
	Color       string
	ClientID    *int64
	At          time.Time // Last update timestamp from Toggl
}

// Workspace represents a Toggl workspace the active profile can track into.
type Workspace struct {
	ID   int64
	Name string
}
