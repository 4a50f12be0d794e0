package domain

import "time"

// Profile identifies one credential/workspace context. Exactly one profile is
// active at a time; its values arrive pre-validated from the profile catalog.
type Profile struct {
	Name             string
	APIToken         string
	WorkspaceID      int64
	DefaultProjectID *int64
	DateFormat       string // e.g. "YYYY-MM-DD", "DD.MM.YYYY"
	TimeFormat       string // "12h" or "24h"
	WeekStartDay     time.Weekday
}
