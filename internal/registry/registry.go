package registry

import (
	"sort"
	"sync"
	"time"

	"carelink/internal/model"

	"github.com/google/uuid"
)

// EventSink receives the snapshot of every accepted, broadcastable mutation.
// The broadcast engine is the production implementation (consumer-defined to
// avoid an import cycle, same as the transport side).
type EventSink interface {
	Publish(sessionID string, snap model.Session, event model.EventType)
}

// entry is the authoritative copy of one session. Its own mutex serializes
// mutations of this session only; operations on different ids never contend
// on it.
type entry struct {
	mu               sync.Mutex
	s                model.Session
	handoffAttempted bool
}

// Registry owns the session table, partitioned into live and concluded
// pools. A session is in exactly one pool at any time; the pool move is
// atomic with respect to the mutation that caused it.
type Registry struct {
	mu        sync.RWMutex
	live      map[string]*entry
	concluded map[string]*entry

	sink EventSink
	now  func() time.Time
}

// NewRegistry creates an empty registry publishing accepted mutations to
// sink.
func NewRegistry(sink EventSink) *Registry {
	return &Registry{
		live:      make(map[string]*entry),
		concluded: make(map[string]*entry),
		sink:      sink,
		now:       time.Now,
	}
}

// SetClock overrides the time source (used by tests to simulate durations).
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Create allocates a fresh session in the live pool with status initiating
// and StateVersion 1.
func (r *Registry) Create(initiatorID, respondentID, initiatorRole, respondentRole string, kind model.CallKind) (model.Session, error) {
	if initiatorID == "" || respondentID == "" || initiatorID == respondentID {
		return model.Session{}, model.ErrInvalidArgument
	}
	if !model.ValidKind(kind) {
		return model.Session{}, model.ErrInvalidArgument
	}

	now := r.now()
	e := &entry{s: model.Session{
		ID:              uuid.New().String(),
		InitiatorID:     initiatorID,
		RespondentID:    respondentID,
		InitiatorRole:   initiatorRole,
		RespondentRole:  respondentRole,
		Kind:            kind,
		Status:          model.CallInitiating,
		CreatedAt:       now,
		StartedAt:       now,
		StateVersion:    1,
		LastStateUpdate: now,
	}}

	r.mu.Lock()
	r.live[e.s.ID] = e
	r.mu.Unlock()

	return e.s.Clone(), nil
}

// Get returns a snapshot, searching the live pool first, then concluded.
func (r *Registry) Get(id string) (model.Session, error) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Clone(), nil
}

// Mutate applies fn to the live session under its lock. On acceptance the
// state version is bumped and the new snapshot is published to the sink
// before the lock is released, so publish order matches mutation order.
// Rejections mutate nothing and publish nothing.
func (r *Registry) Mutate(id string, fn model.TransitionFunc) (model.Session, error) {
	r.mu.RLock()
	e, ok := r.live[id]
	_, concluded := r.concluded[id]
	r.mu.RUnlock()
	if !ok {
		// Concluded sessions accept no further mutation; the distinction
		// from a never-known id matters to callers.
		if concluded {
			return model.Session{}, model.ErrAlreadyEnded
		}
		return model.Session{}, model.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, event, err := r.apply(e, fn)
	if err != nil {
		return model.Session{}, err
	}
	if event != model.EventNone && r.sink != nil {
		r.sink.Publish(id, snap, event)
	}
	return snap, nil
}

// Conclude applies a terminal transition and atomically moves the entry from
// the live pool to the concluded pool, then publishes the final snapshot.
// It does not invoke the durable handoff; the caller orchestrates that
// outside this critical section.
func (r *Registry) Conclude(id string, fn model.TransitionFunc) (model.Session, error) {
	r.mu.RLock()
	e, ok := r.live[id]
	_, concluded := r.concluded[id]
	r.mu.RUnlock()
	if !ok {
		if concluded {
			return model.Session{}, model.ErrAlreadyEnded
		}
		return model.Session{}, model.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, event, err := r.apply(e, fn)
	if err != nil {
		return model.Session{}, err
	}
	if !snap.Status.Terminal() {
		// Programming error in the caller; refuse the pool move.
		return model.Session{}, model.ErrConflict
	}

	r.mu.Lock()
	delete(r.live, id)
	r.concluded[id] = e
	r.mu.Unlock()

	if event != model.EventNone && r.sink != nil {
		r.sink.Publish(id, snap, event)
	}
	return snap, nil
}

// apply runs fn against the entry, bumping the version on acceptance.
// Caller holds e.mu.
func (r *Registry) apply(e *entry, fn model.TransitionFunc) (model.Session, model.EventType, error) {
	now := r.now()
	event, err := fn(&e.s, now)
	if err != nil {
		return model.Session{}, model.EventNone, err
	}
	e.s.StateVersion++
	e.s.LastStateUpdate = now
	return e.s.Clone(), event, nil
}

// lookup finds an entry in either pool, live first.
func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.live[id]; ok {
		return e, true
	}
	if e, ok := r.concluded[id]; ok {
		return e, true
	}
	return nil, false
}

// GetConcluded returns a snapshot only if the session sits in the concluded
// pool. Used for the idempotent end path.
func (r *Registry) GetConcluded(id string) (model.Session, bool) {
	r.mu.RLock()
	e, ok := r.concluded[id]
	r.mu.RUnlock()
	if !ok {
		return model.Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Clone(), true
}

// ActiveFor returns the most recently created live session the user
// participates in.
func (r *Registry) ActiveFor(userID string) (model.Session, error) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.live))
	for _, e := range r.live {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var best model.Session
	found := false
	for _, e := range entries {
		e.mu.Lock()
		if e.s.Participant(userID) && (!found || e.s.CreatedAt.After(best.CreatedAt)) {
			best = e.s.Clone()
			found = true
		}
		e.mu.Unlock()
	}
	if !found {
		return model.Session{}, model.ErrNotFound
	}
	return best, nil
}

// ConcludedBetween returns concluded sessions between the two users in
// either direction, newest first.
func (r *Registry) ConcludedBetween(idA, idB string) []model.Session {
	return r.filterConcluded(func(s *model.Session) bool {
		return (s.InitiatorID == idA && s.RespondentID == idB) ||
			(s.InitiatorID == idB && s.RespondentID == idA)
	})
}

// ConcludedFor returns all concluded sessions the user participated in,
// newest first.
func (r *Registry) ConcludedFor(userID string) []model.Session {
	return r.filterConcluded(func(s *model.Session) bool {
		return s.Participant(userID)
	})
}

func (r *Registry) filterConcluded(match func(*model.Session) bool) []model.Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.concluded))
	for _, e := range r.concluded {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]model.Session, 0)
	for _, e := range entries {
		e.mu.Lock()
		if match(&e.s) {
			out = append(out, e.s.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stats summarizes both pools for diagnostics and reporting.
type Stats struct {
	LiveCount              int                    `json:"liveCount"`
	ConcludedCount         int                    `json:"concludedCount"`
	TotalDurationSeconds   int64                  `json:"totalDurationSeconds"`
	AverageDurationSeconds float64                `json:"averageDurationSeconds"`
	ByKindCounts           map[model.CallKind]int `json:"byKindCounts"`
}

// Stats computes the current aggregate view across both pools.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	liveEntries := make([]*entry, 0, len(r.live))
	for _, e := range r.live {
		liveEntries = append(liveEntries, e)
	}
	concludedEntries := make([]*entry, 0, len(r.concluded))
	for _, e := range r.concluded {
		concludedEntries = append(concludedEntries, e)
	}
	r.mu.RUnlock()

	st := Stats{
		LiveCount:      len(liveEntries),
		ConcludedCount: len(concludedEntries),
		ByKindCounts:   make(map[model.CallKind]int),
	}
	for _, e := range liveEntries {
		e.mu.Lock()
		st.ByKindCounts[e.s.Kind]++
		e.mu.Unlock()
	}
	for _, e := range concludedEntries {
		e.mu.Lock()
		st.ByKindCounts[e.s.Kind]++
		st.TotalDurationSeconds += e.s.DurationSeconds
		e.mu.Unlock()
	}
	if st.ConcludedCount > 0 {
		st.AverageDurationSeconds = float64(st.TotalDurationSeconds) / float64(st.ConcludedCount)
	}
	return st
}

// BeginHandoff marks the concluded session's single handoff attempt.
// Returns false if the session is not concluded or was already attempted.
func (r *Registry) BeginHandoff(id string) bool {
	r.mu.RLock()
	e, ok := r.concluded[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handoffAttempted {
		return false
	}
	e.handoffAttempted = true
	return true
}

// AttachDurableRef enriches the concluded entry in place with the
// references returned by the durable collaborators.
func (r *Registry) AttachDurableRef(id string, ref model.DurableRef) error {
	r.mu.RLock()
	e, ok := r.concluded[id]
	r.mu.RUnlock()
	if !ok {
		return model.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := ref
	e.s.DurableRef = &cp
	return nil
}

// MarkHandoffFallback records that the durable handoff did not complete.
// The conclusion itself is not undone; only the enrichment is missing.
func (r *Registry) MarkHandoffFallback(id string) error {
	r.mu.RLock()
	e, ok := r.concluded[id]
	r.mu.RUnlock()
	if !ok {
		return model.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.HandoffFallback = true
	return nil
}
