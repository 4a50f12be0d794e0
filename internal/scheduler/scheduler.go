package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"toggl-companion/internal/domain"
	"toggl-companion/internal/ports"
	"toggl-companion/internal/store"
)

// Status tracks a mutation through its lifecycle.
type Status int

const (
	StatusQueued Status = iota + 1
	StatusInFlight
	StatusReconciled
	StatusFailed
)

// Mutation is one outstanding or queued change to a specific entry.
type Mutation struct {
	Gen        uint64
	Target     string
	Kind       domain.MutationKind
	Delta      domain.EntryDelta
	Seq        uint64
	Status     Status
	EnqueuedAt time.Time
	readyAt    time.Time // debounce gate: last coalesced edit + debounce
}

// EntrySource resolves a target's current visible state at dispatch time,
// so a create carries the final coalesced values and an update can find the
// server id a create round-trip assigned meanwhile.
type EntrySource interface {
	EntryView(target string) (domain.TimeEntry, bool)
}

// Reconciler receives finished mutations. The store implements it.
type Reconciler interface {
	Reconcile(gen uint64, target string, seq uint64, res store.Result)
}

// Config tunes debounce, the global request budget and the retry policy.
type Config struct {
	Debounce       time.Duration // quiet period before a coalesced mutation fires
	Window         time.Duration // sliding budget window
	WindowRequests int           // max requests per window, across all targets
	MaxAttempts    int           // transient-failure ceiling per mutation
	InitialBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.WindowRequests <= 0 {
		c.WindowRequests = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
}

// Scheduler serializes and throttles outgoing mutations. Per target it keeps
// at most one queued mutation (rapid edits coalesce into it, later field
// wins) and at most one in-flight request; globally it respects a sliding
// request budget, with denied targets waiting in FIFO order.
//
// Dispatch is driven by Tick with an explicit time, decoupled from any UI
// timer: production runs a ticker via Run, tests feed synthetic clocks.
type Scheduler struct {
	log *slog.Logger
	gw  ports.Gateway
	src EntrySource
	rec Reconciler
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	limiter   *rate.Limiter
	queued    map[string]*Mutation
	fifo      []string // targets in enqueue order; ties broken by seq on coalesce
	inflight  map[string]struct{}
	gen       uint64
	suspended bool
	ctx       context.Context
	onUnauth  func()

	wg sync.WaitGroup
}

// New creates a scheduler; it dispatches nothing until Tick or Run is called.
func New(log *slog.Logger, gw ports.Gateway, src EntrySource, rec Reconciler, cfg Config, now func() time.Time) *Scheduler {
	cfg.applyDefaults()
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		log:      log,
		gw:       gw,
		src:      src,
		rec:      rec,
		cfg:      cfg,
		now:      now,
		limiter:  rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.WindowRequests)), cfg.WindowRequests),
		queued:   make(map[string]*Mutation),
		inflight: make(map[string]struct{}),
		ctx:      context.Background(),
	}
}

// SetUnauthorizedHook registers the session's credential-invalidation
// handler. Dispatch is suspended before the hook runs.
func (s *Scheduler) SetUnauthorizedHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUnauth = fn
}

// Enqueue adds a pending mutation. A queued (not yet in-flight) mutation for
// the same target is coalesced instead of duplicated: deltas merge with the
// later field winning, the sequence number rises, and the debounce window
// restarts from this edit.
func (s *Scheduler) Enqueue(gen uint64, target string, kind domain.MutationKind, delta domain.EntryDelta, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.gen {
		s.log.Debug("dropping mutation from stale generation",
			slog.String("target", target), slog.Uint64("gen", gen))
		return
	}
	now := s.now()
	if m, ok := s.queued[target]; ok {
		m.Delta = m.Delta.Merge(delta)
		m.Kind = coalesceKind(m.Kind, kind)
		if seq > m.Seq {
			m.Seq = seq
		}
		m.readyAt = now.Add(s.cfg.Debounce)
		return
	}
	s.queued[target] = &Mutation{
		Gen:        gen,
		Target:     target,
		Kind:       kind,
		Delta:      delta,
		Seq:        seq,
		Status:     StatusQueued,
		EnqueuedAt: now,
		readyAt:    now.Add(s.cfg.Debounce),
	}
	s.fifo = append(s.fifo, target)
}

// coalesceKind merges operation kinds for one target. A delete supersedes
// everything; edits folded into an unsent create stay a create (the payload
// carries the final values); mixing stop with field edits becomes a full
// update so a single call carries both.
func coalesceKind(earlier, later domain.MutationKind) domain.MutationKind {
	switch {
	case later == domain.MutationDelete:
		return domain.MutationDelete
	case earlier == domain.MutationCreate:
		return domain.MutationCreate
	case earlier != later:
		return domain.MutationUpdate
	default:
		return earlier
	}
}

// Tick dispatches every mutation that is due at now: debounce elapsed, no
// in-flight request for its target, and the global budget grants a slot.
// Everything else keeps its place in line.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	var dispatch []*Mutation
	var kept []string
	for _, target := range s.fifo {
		m, ok := s.queued[target]
		if !ok {
			continue
		}
		if s.suspended || now.Before(m.readyAt) {
			kept = append(kept, target)
			continue
		}
		if _, busy := s.inflight[target]; busy {
			kept = append(kept, target)
			continue
		}
		if !s.limiter.AllowN(now, 1) {
			kept = append(kept, target)
			continue
		}
		delete(s.queued, target)
		s.inflight[target] = struct{}{}
		m.Status = StatusInFlight
		dispatch = append(dispatch, m)
	}
	s.fifo = kept
	s.mu.Unlock()

	for _, m := range dispatch {
		s.wg.Add(1)
		go s.perform(m)
	}
}

// Run drives Tick until the context is cancelled, then waits for in-flight
// requests to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case t := <-ticker.C:
			s.Tick(t)
		}
	}
}

// Reset drops all queued work and raises the accepted generation; responses
// still in flight are discarded by the store's generation check on arrival.
func (s *Scheduler) Reset(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = gen
	s.queued = make(map[string]*Mutation)
	s.fifo = nil
	s.suspended = false
}

// Suspend stops dispatching without dropping queued work; used while
// re-authentication is pending.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
}

// Resume re-enables dispatch.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
}

// QueuedCount returns the number of coalesced mutations waiting to dispatch.
func (s *Scheduler) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

// InFlightCount returns the number of requests currently on the wire.
func (s *Scheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Wait blocks until all in-flight requests have reconciled. Test helper.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) perform(m *Mutation) {
	defer s.wg.Done()
	res := s.execute(m)
	if res.Err != nil {
		m.Status = StatusFailed
	} else {
		m.Status = StatusReconciled
	}
	// Reconcile before releasing the target so a coalesced follow-up
	// dispatched on the next tick sees the post-reconcile state (in
	// particular a server id assigned by a create).
	s.rec.Reconcile(m.Gen, m.Target, m.Seq, res)
	s.mu.Lock()
	delete(s.inflight, m.Target)
	s.mu.Unlock()
}

// execute runs the gateway call with bounded exponential backoff on
// transient failures. Validation failures are never retried; an unauthorized
// failure suspends dispatch and fires the session hook.
func (s *Scheduler) execute(m *Mutation) store.Result {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.MaxInterval = 5 * time.Second
	bo.Reset()

	var lastErr error
	for attempt := 1; ; attempt++ {
		res, err := s.call(m)
		if err == nil {
			return res
		}
		lastErr = err
		if ports.IsUnauthorized(err) {
			s.notifyUnauthorized()
			break
		}
		if !ports.IsTransient(err) {
			break
		}
		if attempt >= s.cfg.MaxAttempts {
			s.log.Warn("mutation failed after retries",
				slog.String("target", m.Target),
				slog.String("kind", m.Kind.String()),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()))
			break
		}
		s.log.Debug("retrying transient failure",
			slog.String("target", m.Target), slog.Int("attempt", attempt))
		select {
		case <-s.baseCtx().Done():
			return store.Result{Kind: m.Kind, Err: s.baseCtx().Err()}
		case <-time.After(bo.NextBackOff()):
		}
	}
	return store.Result{Kind: m.Kind, Err: lastErr}
}

func (s *Scheduler) call(m *Mutation) (store.Result, error) {
	ctx := s.baseCtx()
	switch m.Kind {
	case domain.MutationCreate:
		e, ok := s.src.EntryView(m.Target)
		if !ok {
			return store.Result{}, &ports.GatewayError{Kind: ports.Validation, Message: "entry vanished before create"}
		}
		out, err := s.gw.CreateEntry(ctx, e.WorkspaceID, e)
		if err != nil {
			return store.Result{}, err
		}
		return store.Result{Kind: m.Kind, Entry: &out}, nil

	case domain.MutationUpdate:
		e, ok := s.src.EntryView(m.Target)
		if !ok {
			return store.Result{}, &ports.GatewayError{Kind: ports.Validation, Message: "entry vanished before update"}
		}
		if e.ID == 0 {
			return store.Result{}, &ports.GatewayError{Kind: ports.Validation, Message: "no server id for entry"}
		}
		out, err := s.gw.UpdateEntry(ctx, e.WorkspaceID, e.ID, m.Delta)
		if err != nil {
			return store.Result{}, err
		}
		return store.Result{Kind: m.Kind, Entry: &out}, nil

	case domain.MutationStop:
		e, ok := s.src.EntryView(m.Target)
		if !ok {
			return store.Result{}, &ports.GatewayError{Kind: ports.Validation, Message: "entry vanished before stop"}
		}
		if e.ID == 0 {
			return store.Result{}, &ports.GatewayError{Kind: ports.Validation, Message: "no server id for entry"}
		}
		out, err := s.gw.StopEntry(ctx, e.WorkspaceID, e.ID)
		if err != nil {
			return store.Result{}, err
		}
		return store.Result{Kind: m.Kind, Entry: &out}, nil

	case domain.MutationDelete:
		e, ok := s.src.EntryView(m.Target)
		if !ok || e.ID == 0 {
			// Nothing ever reached the server for this entry (its create was
			// coalesced away); resolve the delete locally.
			return store.Result{Kind: m.Kind, Deleted: true}, nil
		}
		if err := s.gw.DeleteEntry(ctx, e.WorkspaceID, e.ID); err != nil {
			return store.Result{}, err
		}
		return store.Result{Kind: m.Kind, Deleted: true}, nil
	}
	return store.Result{}, fmt.Errorf("unknown mutation kind %d", m.Kind)
}

func (s *Scheduler) baseCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) notifyUnauthorized() {
	s.mu.Lock()
	s.suspended = true
	hook := s.onUnauth
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}
