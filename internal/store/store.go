package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"toggl-companion/internal/domain"
)

// Dispatcher receives local mutations for delivery to the remote service.
// The scheduler implements it; the store never issues network calls itself.
type Dispatcher interface {
	Enqueue(gen uint64, target string, kind domain.MutationKind, delta domain.EntryDelta, seq uint64)
}

// ProfileContext exposes the active profile's defaults, consumed when the
// store constructs new entries.
type ProfileContext interface {
	WorkspaceID() int64
	DefaultProjectID() *int64
}

// Result is the outcome of one gateway mutation, delivered to Reconcile.
type Result struct {
	Kind    domain.MutationKind
	Entry   *domain.TimeEntry // server echo; nil for deletes
	Deleted bool
	Err     error // terminal failure; transient errors never reach the store
}

// EditError surfaces a rejected optimistic edit after its rollback.
type EditError struct {
	Target string
	Seq    uint64
	Kind   domain.MutationKind
	Err    error
}

// Store holds the canonical local view of the running entry and the recent
// entries list. Local mutations apply immediately; Reconcile is the single
// entry point through which gateway goroutines feed authoritative results
// back, keyed by per-target sequence numbers so response arrival order never
// decides what overwrites visible state.
type Store struct {
	log *slog.Logger
	now func() time.Time

	mu         sync.Mutex
	profile    ProfileContext
	disp       Dispatcher
	gen        uint64
	running    string // LocalID of the running entry, "" if none
	entries    map[string]*entryState
	tombstones map[string]*entryState // deleted locally, delete not yet confirmed
	errs       chan EditError
}

type entryState struct {
	entry   domain.TimeEntry
	lastSeq uint64
	pending []pendingEdit // unconfirmed edits, ascending by seq
}

type pendingEdit struct {
	seq    uint64
	kind   domain.MutationKind
	before domain.EntryDelta // pre-edit values of the touched fields
	after  domain.EntryDelta
}

// New creates an empty store. The dispatcher and profile context are
// attached separately because store, scheduler and session reference each
// other; call SetDispatcher and SetProfileContext before use.
func New(log *slog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		log:        log,
		now:        now,
		entries:    make(map[string]*entryState),
		tombstones: make(map[string]*entryState),
		errs:       make(chan EditError, 64),
	}
}

// SetDispatcher attaches the scheduler.
func (s *Store) SetDispatcher(d Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disp = d
}

// SetProfileContext attaches the session's read-only profile view.
func (s *Store) SetProfileContext(p ProfileContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// Generation returns the current profile generation tag.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// BumpGeneration advances the profile generation, causing any response still
// in flight for the previous generation to be discarded on arrival.
func (s *Store) BumpGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// Errors delivers rejected edits after their rollback.
func (s *Store) Errors() <-chan EditError {
	return s.errs
}

// ApplyLocalEdit mutates the visible entry immediately, allocates the next
// sequence number for the target and hands the delta to the dispatcher. It
// never fails; an unknown target is logged and ignored (seq 0).
func (s *Store) ApplyLocalEdit(target string, delta domain.EntryDelta) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(target, delta, domain.MutationUpdate)
}

func (s *Store) applyLocked(target string, delta domain.EntryDelta, kind domain.MutationKind) uint64 {
	es, ok := s.entries[target]
	if !ok {
		s.log.Warn("edit for unknown entry dropped", slog.String("target", target))
		return 0
	}
	before := domain.SnapshotOf(&es.entry, delta.Fields())
	delta.Apply(&es.entry)
	es.lastSeq++
	seq := es.lastSeq
	es.pending = append(es.pending, pendingEdit{seq: seq, kind: kind, before: before, after: delta})
	s.refreshRunningLocked(target)
	s.enqueueLocked(target, kind, delta, seq)
	return seq
}

func (s *Store) enqueueLocked(target string, kind domain.MutationKind, delta domain.EntryDelta, seq uint64) {
	if s.disp == nil {
		s.log.Warn("no dispatcher attached, edit stays local", slog.String("target", target))
		return
	}
	s.disp.Enqueue(s.gen, target, kind, delta, seq)
}

// refreshRunningLocked maintains the single-running-entry invariant after the
// given entry changed. If it became running while another entry holds the
// slot, the previous one is stopped at the new entry's start so the boundary
// stays contiguous.
func (s *Store) refreshRunningLocked(target string) {
	es, ok := s.entries[target]
	if !ok {
		return
	}
	if es.entry.Stop == nil {
		if s.running != "" && s.running != target {
			stop := es.entry.Start
			s.applyLocked(s.running, domain.SetStop(&stop), domain.MutationUpdate)
		}
		s.running = target
	} else if s.running == target {
		s.running = ""
	}
}

// Start begins a new running entry. A previously running entry receives a
// stop time equal to the new entry's start, applied optimistically and
// confirmed on reconciliation. The profile's default project is assigned when
// none is given.
func (s *Store) Start(description string, projectID *int64, at time.Time) (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var workspaceID int64
	if s.profile != nil {
		workspaceID = s.profile.WorkspaceID()
		if projectID == nil {
			projectID = s.profile.DefaultProjectID()
		}
	}
	e := domain.TimeEntry{
		LocalID:     domain.NewLocalID(),
		Description: description,
		ProjectID:   projectID,
		WorkspaceID: workspaceID,
		Start:       at,
		DurationSec: -1,
	}
	es := &entryState{entry: e}
	s.entries[e.LocalID] = es
	s.refreshRunningLocked(e.LocalID)

	es.lastSeq++
	seq := es.lastSeq
	create := domain.SnapshotOf(&es.entry, domain.EditableFields)
	es.pending = append(es.pending, pendingEdit{seq: seq, kind: domain.MutationCreate, after: create})
	s.enqueueLocked(e.LocalID, domain.MutationCreate, create, seq)
	return e.LocalID, seq
}

// StopRunning stops the running entry at the given time. Reports false when
// nothing is running.
func (s *Store) StopRunning(at time.Time) (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == "" {
		return "", 0, false
	}
	target := s.running
	seq := s.applyLocked(target, domain.SetStop(&at), domain.MutationStop)
	return target, seq, true
}

// Delete removes the entry from the visible view and queues the remote
// delete. The entry is kept aside until the delete reconciles so a rejected
// delete can restore it; late responses for other in-flight mutations of the
// same target are discarded rather than resurrecting it.
func (s *Store) Delete(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.entries[target]
	if !ok {
		return false
	}
	delete(s.entries, target)
	if s.running == target {
		s.running = ""
	}
	s.tombstones[target] = es
	es.lastSeq++
	s.enqueueLocked(target, domain.MutationDelete, domain.EntryDelta{}, es.lastSeq)
	return true
}

// Reconcile merges one gateway result into the local view. Results carrying a
// stale generation or targeting an entry the snapshot replaced are dropped
// silently; that is the sequence-conflict case, not an error.
func (s *Store) Reconcile(gen uint64, target string, seq uint64, res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.log.Debug("discarding result from stale generation",
			slog.Uint64("gen", gen), slog.Uint64("current", s.gen))
		return
	}

	if ts, ok := s.tombstones[target]; ok {
		s.reconcileTombstoneLocked(target, ts, seq, res)
		return
	}

	es, ok := s.entries[target]
	if !ok {
		s.log.Debug("discarding result for unknown entry", slog.String("target", target))
		return
	}

	confirmed, remaining := splitPending(es.pending, seq)
	es.pending = remaining
	newer := pendingFields(remaining)

	if res.Err != nil {
		s.rollbackLocked(target, es, confirmed, newer, seq, res)
		return
	}
	if res.Deleted {
		delete(s.entries, target)
		if s.running == target {
			s.running = ""
		}
		return
	}
	if res.Entry != nil {
		adoptServerEcho(&es.entry, *res.Entry, newer)
		s.refreshRunningLocked(target)
	}
}

func (s *Store) reconcileTombstoneLocked(target string, ts *entryState, seq uint64, res Result) {
	switch {
	case res.Err != nil && res.Kind == domain.MutationDelete:
		// Delete rejected: restore the entry.
		delete(s.tombstones, target)
		s.entries[target] = ts
		s.refreshRunningLocked(target)
		s.surfaceLocked(target, seq, res)
	case res.Err != nil:
		// An older mutation for an entry deleted meanwhile; nothing visible
		// to roll back.
		s.log.Debug("discarding failure for deleted entry", slog.String("target", target))
	case res.Deleted:
		delete(s.tombstones, target)
	case res.Entry != nil:
		// Late echo for a deleted entry: do not resurrect it, but record the
		// server id so the queued delete can address the right entity.
		ts.entry.ID = res.Entry.ID
	}
}

func (s *Store) rollbackLocked(target string, es *entryState, confirmed []pendingEdit, newer map[domain.Field]bool, seq uint64, res Result) {
	createFailed := false
	for _, p := range confirmed {
		if p.kind == domain.MutationCreate {
			createFailed = true
		}
	}
	if createFailed && es.entry.ID == 0 {
		// The entry never existed remotely; rolling back a create means
		// removing it from the view.
		delete(s.entries, target)
		if s.running == target {
			s.running = ""
		}
		s.surfaceLocked(target, seq, res)
		return
	}
	for i := len(confirmed) - 1; i >= 0; i-- {
		revert := confirmed[i].before.Mask(func(f domain.Field) bool { return !newer[f] })
		revert.Apply(&es.entry)
	}
	s.refreshRunningLocked(target)
	s.surfaceLocked(target, seq, res)
}

func (s *Store) surfaceLocked(target string, seq uint64, res Result) {
	ee := EditError{Target: target, Seq: seq, Kind: res.Kind, Err: res.Err}
	select {
	case s.errs <- ee:
	default:
		s.log.Warn("edit error channel full",
			slog.String("target", target), slog.String("error", res.Err.Error()))
	}
}

// LoadSnapshot replaces the entire visible set. The running entry is fetched
// and passed independently of any week windowing on the recent list; a
// running entry duplicated in the list (matched by server id) is dropped in
// favor of the dedicated slot. All sequence bookkeeping resets: the snapshot
// is authoritative.
func (s *Store) LoadSnapshot(entries []domain.TimeEntry, running *domain.TimeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entryState, len(entries)+1)
	s.tombstones = make(map[string]*entryState)
	s.running = ""

	for _, e := range entries {
		if running != nil && running.ID != 0 && e.ID == running.ID {
			continue
		}
		c := e.Clone()
		if c.LocalID == "" {
			c.LocalID = domain.NewLocalID()
		}
		if c.Stop == nil {
			// A running entry hiding in the recent list; give it the slot
			// unless the dedicated fetch already did.
			if running != nil {
				continue
			}
			s.running = c.LocalID
		}
		s.entries[c.LocalID] = &entryState{entry: c}
	}
	if running != nil {
		r := running.Clone()
		if r.LocalID == "" {
			r.LocalID = domain.NewLocalID()
		}
		s.entries[r.LocalID] = &entryState{entry: r}
		s.running = r.LocalID
	}
}

// Running returns a copy of the running entry, or nil.
func (s *Store) Running() *domain.TimeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == "" {
		return nil
	}
	e := s.entries[s.running].entry.Clone()
	return &e
}

// Recent returns copies of the stopped entries, most recent start first.
func (s *Store) Recent() []domain.TimeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TimeEntry, 0, len(s.entries))
	for id, es := range s.entries {
		if id == s.running {
			continue
		}
		out = append(out, es.entry.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out
}

// EntryView returns a copy of the entry's current visible state. Tombstoned
// entries are still visible here so the scheduler can resolve server ids for
// queued deletes.
func (s *Store) EntryView(target string) (domain.TimeEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if es, ok := s.entries[target]; ok {
		return es.entry.Clone(), true
	}
	if ts, ok := s.tombstones[target]; ok {
		return ts.entry.Clone(), true
	}
	return domain.TimeEntry{}, false
}

// EditFrame builds a history frame for applying delta to target, capturing
// the current values of the touched fields as the before-state. Reports false
// when the target is unknown.
func (s *Store) EditFrame(target string, delta domain.EntryDelta) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.entries[target]
	if !ok {
		return Frame{}, false
	}
	return Frame{
		Target: target,
		At:     s.now(),
		Before: domain.SnapshotOf(&es.entry, delta.Fields()),
		After:  delta,
	}, true
}

func splitPending(pending []pendingEdit, seq uint64) (confirmed, remaining []pendingEdit) {
	for _, p := range pending {
		if p.seq <= seq {
			confirmed = append(confirmed, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	return confirmed, remaining
}

func pendingFields(pending []pendingEdit) map[domain.Field]bool {
	out := make(map[domain.Field]bool)
	for _, p := range pending {
		for _, f := range p.after.Fields() {
			out[f] = true
		}
	}
	return out
}

// adoptServerEcho copies the server's canonical fields into the local entry,
// except for fields a newer unconfirmed local edit still owns. The server is
// always authoritative for ids; the computed duration follows the time
// bounds, so it is only adopted when neither bound is locally newer.
func adoptServerEcho(e *domain.TimeEntry, srv domain.TimeEntry, newer map[domain.Field]bool) {
	e.ID = srv.ID
	if srv.WorkspaceID != 0 {
		e.WorkspaceID = srv.WorkspaceID
	}
	if !newer[domain.FieldDescription] {
		e.Description = srv.Description
	}
	if !newer[domain.FieldStart] {
		e.Start = srv.Start
	}
	if !newer[domain.FieldStop] {
		if srv.Stop != nil {
			stop := *srv.Stop
			e.Stop = &stop
		} else {
			e.Stop = nil
		}
	}
	if !newer[domain.FieldProject] {
		if srv.ProjectID != nil {
			p := *srv.ProjectID
			e.ProjectID = &p
		} else {
			e.ProjectID = nil
		}
	}
	if !newer[domain.FieldTags] {
		e.Tags = append([]string(nil), srv.Tags...)
	}
	if !newer[domain.FieldBillable] {
		e.Billable = srv.Billable
	}
	if !newer[domain.FieldStart] && !newer[domain.FieldStop] {
		e.DurationSec = srv.DurationSec
	}
}
