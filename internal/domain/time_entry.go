package domain

import (
	"time"

	"github.com/google/uuid"
)

// TimeEntry represents a Toggl time entry in the domain.
//
// ID is the server-assigned identity and stays 0 until the create call
// round-trips. LocalID is assigned at construction and never changes, so an
// entry can be addressed before the server has named it.
type TimeEntry struct {
	ID          int64
	LocalID     string
	Description string
	ProjectID   *int64
	WorkspaceID int64
	Tags        []string
	Billable    bool
	Start       time.Time
	Stop        *time.Time // nil means running
	DurationSec int64      // Negative means running in Toggl API semantics
}

// NewLocalID allocates a fresh local identity for an entry.
func NewLocalID() string {
	return uuid.NewString()
}

// Running reports whether the entry has no stop time yet.
func (e *TimeEntry) Running() bool {
	return e.Stop == nil
}

// Duration returns the entry's elapsed time, using now for a running entry.
func (e *TimeEntry) Duration(now time.Time) time.Duration {
	if e.Stop != nil {
		return e.Stop.Sub(e.Start)
	}
	return now.Sub(e.Start)
}

// Clone returns a deep copy so callers can hand entries across goroutine
// boundaries without sharing mutable state.
func (e *TimeEntry) Clone() TimeEntry {
	out := *e
	if e.Stop != nil {
		stop := *e.Stop
		out.Stop = &stop
	}
	if e.ProjectID != nil {
		p := *e.ProjectID
		out.ProjectID = &p
	}
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	return out
}
