package ports

import (
	"context"
	"time"

	"toggl-companion/internal/domain"
)

// Gateway defines the mutations and reads the core issues against the remote
// time-tracking service. Implementations own the wire protocol, per-request
// timeouts and authentication; the core only sees domain values and typed
// failures (see GatewayError).
type Gateway interface {
	CreateEntry(ctx context.Context, workspaceID int64, fields domain.TimeEntry) (domain.TimeEntry, error)
	UpdateEntry(ctx context.Context, workspaceID, id int64, delta domain.EntryDelta) (domain.TimeEntry, error)
	StopEntry(ctx context.Context, workspaceID, id int64) (domain.TimeEntry, error)
	DeleteEntry(ctx context.Context, workspaceID, id int64) error
	FetchRecent(ctx context.Context, workspaceID int64, since time.Time) ([]domain.TimeEntry, error)
	FetchRunning(ctx context.Context, workspaceID int64) (*domain.TimeEntry, error)
	ListProjects(ctx context.Context, workspaceID int64) ([]domain.Project, error)
}
