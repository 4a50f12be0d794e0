package app

import (
	"context"
	"fmt"
	"log/slog"

	prof "toggl-companion/internal/adapter/profile"
	tg "toggl-companion/internal/adapter/toggl"
	"toggl-companion/internal/config"
	"toggl-companion/internal/domain"
	"toggl-companion/internal/scheduler"
	"toggl-companion/internal/store"
	"toggl-companion/internal/usecase"
)

// App wires adapters and the sync core.
type App struct {
	log      *slog.Logger
	cfg      config.Config
	profiles []domain.Profile

	Store   *store.Store
	History *store.History
	Sched   *scheduler.Scheduler
	Session *usecase.Session
}

func New(log *slog.Logger, cfg config.Config) (*App, error) {
	profiles, err := prof.Load(cfg.Profiles.Path)
	if err != nil {
		return nil, err
	}

	gw := tg.NewClient(cfg.Toggl.BaseURL, "", log)
	st := store.New(log, nil)
	sch := scheduler.New(log, gw, st, st, scheduler.Config{
		Debounce:       cfg.Sync.Debounce,
		Window:         cfg.Sync.Window,
		WindowRequests: cfg.Sync.WindowRequests,
		MaxAttempts:    cfg.Sync.MaxAttempts,
	}, nil)
	st.SetDispatcher(sch)
	hist := store.NewHistory(st, cfg.Sync.HistoryDepth)
	sess := usecase.NewSession(log, gw, gw, st, hist, sch, cfg.Sync.RecentWindow, nil)
	st.SetProfileContext(sess)

	return &App{
		log:      log,
		cfg:      cfg,
		profiles: profiles,
		Store:    st,
		History:  hist,
		Sched:    sch,
		Session:  sess,
	}, nil
}

// Profile looks a profile up by name; an empty name selects the first one.
func (a *App) Profile(name string) (domain.Profile, error) {
	if name == "" {
		return a.profiles[0], nil
	}
	for _, p := range a.profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.Profile{}, fmt.Errorf("unknown profile %q", name)
}

// Run activates the named profile and drives the scheduler until the context
// is cancelled.
func (a *App) Run(ctx context.Context, profileName string) error {
	p, err := a.Profile(profileName)
	if err != nil {
		return err
	}
	if err := a.Session.Switch(ctx, p); err != nil {
		return err
	}
	go a.drainEditErrors(ctx)
	a.Sched.Run(ctx)
	return nil
}

// drainEditErrors logs rejected edits; the rollback already happened in the
// store, this is the surfaced notice.
func (a *App) drainEditErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ee := <-a.Store.Errors():
			a.log.Warn("edit rejected and rolled back",
				slog.String("target", ee.Target),
				slog.String("kind", ee.Kind.String()),
				slog.Uint64("seq", ee.Seq),
				slog.String("error", ee.Err.Error()))
		}
	}
}
