package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"toggl-companion/internal/domain"
	"toggl-companion/internal/ports"
	"toggl-companion/internal/scheduler"
	"toggl-companion/internal/store"
	"toggl-companion/internal/timeutil"
)

// CredentialSink receives the active profile's credential; the gateway
// adapter implements it.
type CredentialSink interface {
	SetCredential(apiToken string)
}

// Session owns the currently active profile. Switching tears down all
// pending mutation and history state tied to the previous profile and
// re-primes the store from a fresh fetch; late responses from the old
// profile are discarded by generation tag.
type Session struct {
	log     *slog.Logger
	gw      ports.Gateway
	creds   CredentialSink
	store   *store.Store
	history *store.History
	sched   *scheduler.Scheduler

	recentWindow time.Duration
	now          func() time.Time

	mu       sync.Mutex
	active   domain.Profile
	valid    bool
	projects []domain.Project
}

// NewSession wires the session manager and registers its unauthorized hook
// with the scheduler.
func NewSession(log *slog.Logger, gw ports.Gateway, creds CredentialSink, st *store.Store, hist *store.History, sched *scheduler.Scheduler, recentWindow time.Duration, now func() time.Time) *Session {
	if recentWindow <= 0 {
		recentWindow = 14 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	s := &Session{
		log:          log,
		gw:           gw,
		creds:        creds,
		store:        st,
		history:      hist,
		sched:        sched,
		recentWindow: recentWindow,
		now:          now,
	}
	sched.SetUnauthorizedHook(s.handleUnauthorized)
	return s
}

// Switch makes the given profile active: it invalidates all pending work for
// the outgoing profile, clears history, and primes the store from a fresh
// fetch. The running entry is fetched on its own, never inferred from the
// recent window (a running entry may have started long before it).
func (s *Session) Switch(ctx context.Context, p domain.Profile) error {
	s.mu.Lock()
	s.active = p
	s.valid = true
	s.mu.Unlock()

	gen := s.store.BumpGeneration()
	s.sched.Reset(gen)
	s.history.Clear()
	if s.creds != nil {
		s.creds.SetCredential(p.APIToken)
	}
	s.log.Info("switching profile",
		slog.String("profile", p.Name), slog.Int64("workspace", p.WorkspaceID))

	var (
		entries  []domain.TimeEntry
		running  *domain.TimeEntry
		projects []domain.Project
	)
	since := s.now().Add(-s.recentWindow)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.gw.FetchRecent(gctx, p.WorkspaceID, since)
		return err
	})
	g.Go(func() error {
		var err error
		running, err = s.gw.FetchRunning(gctx, p.WorkspaceID)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = s.gw.ListProjects(gctx, p.WorkspaceID)
		return err
	})
	if err := g.Wait(); err != nil {
		if ports.IsUnauthorized(err) {
			s.handleUnauthorized()
		}
		return fmt.Errorf("prime profile %q: %w", p.Name, err)
	}

	// The /me feed spans every workspace the token can see; the local view
	// only tracks the active one.
	kept := entries[:0]
	for _, e := range entries {
		if e.WorkspaceID == 0 || e.WorkspaceID == p.WorkspaceID {
			kept = append(kept, e)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	s.mu.Lock()
	s.projects = projects
	s.mu.Unlock()

	s.store.LoadSnapshot(kept, running)
	s.log.Info("profile primed",
		slog.String("profile", p.Name),
		slog.Int("entries", len(kept)),
		slog.Int("projects", len(projects)),
		slog.Bool("running", running != nil))
	return nil
}

// Projects returns the active workspace's projects, sorted by name.
func (s *Session) Projects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Project(nil), s.projects...)
}

// ProjectName resolves a project id against the primed project list; unknown
// ids resolve to the empty string.
func (s *Session) ProjectName(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

// Active returns the active profile.
func (s *Session) Active() domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Valid reports whether the session credential is currently usable.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// WorkspaceID implements store.ProfileContext.
func (s *Session) WorkspaceID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.WorkspaceID
}

// DefaultProjectID implements store.ProfileContext.
func (s *Session) DefaultProjectID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.DefaultProjectID == nil {
		return nil
	}
	p := *s.active.DefaultProjectID
	return &p
}

// Reauthenticate installs a fresh credential for the active profile, resumes
// dispatch and re-primes the store.
func (s *Session) Reauthenticate(ctx context.Context, apiToken string) error {
	s.mu.Lock()
	if s.active.Name == "" {
		s.mu.Unlock()
		return errors.New("no active profile")
	}
	p := s.active
	p.APIToken = apiToken
	s.mu.Unlock()

	s.sched.Resume()
	return s.Switch(ctx, p)
}

// WeekTotal sums this week's tracked time, using the profile's week start
// day. The running entry always counts its elapsed time, wherever it
// started.
func (s *Session) WeekTotal(now time.Time) time.Duration {
	weekStart := timeutil.StartOfWeek(now, s.Active().WeekStartDay)
	var total time.Duration
	for _, e := range s.store.Recent() {
		if !e.Start.Before(weekStart) {
			total += e.Duration(now)
		}
	}
	if r := s.store.Running(); r != nil {
		total += r.Duration(now)
	}
	return total
}

func (s *Session) handleUnauthorized() {
	s.mu.Lock()
	s.valid = false
	name := s.active.Name
	s.mu.Unlock()
	s.sched.Suspend()
	s.log.Warn("session invalidated, awaiting re-authentication",
		slog.String("profile", name))
}
