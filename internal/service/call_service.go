package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"carelink/internal/broadcast"
	"carelink/internal/collab"
	"carelink/internal/model"
	"carelink/internal/registry"
	"carelink/internal/subscribers"
)

// CallService is the public surface of the call core. It orchestrates the
// registry, the subscriber directory, the broadcast engine and the durable
// handoff; a transport/gateway layer consumes it.
type CallService struct {
	reg    *registry.Registry
	dir    *subscribers.Directory
	engine *broadcast.Engine
	blobs  collab.BlobStore
	ledger collab.Ledger
}

// NewCallService wires the call core together.
func NewCallService(
	reg *registry.Registry,
	dir *subscribers.Directory,
	engine *broadcast.Engine,
	blobs collab.BlobStore,
	ledger collab.Ledger,
) *CallService {
	return &CallService{
		reg:    reg,
		dir:    dir,
		engine: engine,
		blobs:  blobs,
		ledger: ledger,
	}
}

// CreateSession starts a new call in status initiating.
func (s *CallService) CreateSession(initiatorID, respondentID, initiatorRole, respondentRole string, kind model.CallKind) (model.Session, error) {
	sess, err := s.reg.Create(initiatorID, respondentID, initiatorRole, respondentRole, kind)
	if err != nil {
		return model.Session{}, err
	}
	log.Printf("session %s created: %s %s -> %s", sess.ID, sess.Kind, initiatorID, respondentID)
	return sess, nil
}

// AnswerSession connects the call. Only the designated respondent may
// answer.
func (s *CallService) AnswerSession(id, requester string) (model.Session, error) {
	return s.reg.Mutate(id, model.Answer(requester))
}

// EndSession concludes the call and dispatches the durable handoff outside
// the conclusion's critical section. Ending an already-concluded session is
// idempotent: the prior finalized summary is returned instead of an error.
func (s *CallService) EndSession(ctx context.Context, id, requester string) (model.Session, error) {
	sess, err := s.reg.Conclude(id, model.End(requester))
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrAlreadyEnded) {
		// Idempotent end: a session concluded earlier (or by a racing
		// hang-up) resolves to its prior finalized summary.
		if prior, ok := s.reg.GetConcluded(id); ok {
			return prior, nil
		}
		return model.Session{}, model.ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}

	s.dir.TearDown(id)
	go s.runHandoff(ctx, sess)

	log.Printf("session %s ended by %s after %ds", id, requester, sess.DurationSeconds)
	return sess, nil
}

// UpdateStatus applies a non-answer status change: "ringing" while the
// respondent's device is being reached, or "missed" when the surrounding
// application decides an unanswered call is over. Missed concludes the
// session like an end does.
func (s *CallService) UpdateStatus(ctx context.Context, id, requester string, status model.CallStatus) (model.Session, error) {
	switch status {
	case model.CallRinging:
		return s.reg.Mutate(id, model.Ring(requester))
	case model.CallMissed:
		sess, err := s.reg.Conclude(id, model.Missed(requester))
		if err != nil {
			return model.Session{}, err
		}
		s.dir.TearDown(id)
		go s.runHandoff(ctx, sess)
		return sess, nil
	default:
		return model.Session{}, model.ErrInvalidArgument
	}
}

// GetSessionState returns a snapshot from either pool.
func (s *CallService) GetSessionState(id string) (model.Session, error) {
	return s.reg.Get(id)
}

// GetActiveSessionFor returns the user's most recent live session.
func (s *CallService) GetActiveSessionFor(userID string) (model.Session, error) {
	return s.reg.ActiveFor(userID)
}

// GetConcludedBetween returns concluded sessions between two users.
func (s *CallService) GetConcludedBetween(idA, idB string) []model.Session {
	return s.reg.ConcludedBetween(idA, idB)
}

// GetConcludedFor returns the user's concluded sessions.
func (s *CallService) GetConcludedFor(userID string) []model.Session {
	return s.reg.ConcludedFor(userID)
}

// GetStats returns the aggregate view of both pools.
func (s *CallService) GetStats() registry.Stats {
	return s.reg.Stats()
}

// JoinSubscription registers an observer's delivery address for a live
// session and immediately pushes a full snapshot so the observer never
// waits for the next mutation to learn current status.
func (s *CallService) JoinSubscription(sessionID, observerID string, addr broadcast.Address) error {
	snap, err := s.reg.Get(sessionID)
	if err != nil {
		return err
	}
	if snap.Status.Terminal() {
		return model.ErrNotFound
	}
	s.dir.Join(sessionID, observerID, addr)

	// The session may have concluded between the lookup and the join; its
	// teardown would then have missed this entry.
	if cur, err := s.reg.Get(sessionID); err != nil || cur.Status.Terminal() {
		s.dir.Leave(sessionID, observerID)
		return model.ErrNotFound
	}

	s.engine.DeliverTo(addr, snap, model.EventSnapshot)
	return nil
}

// LeaveSubscription removes the observer's entry; no-op if absent.
func (s *CallService) LeaveSubscription(sessionID, observerID string) {
	s.dir.Leave(sessionID, observerID)
}

// SubscriberCount reports the current observer count for diagnostics.
func (s *CallService) SubscriberCount(sessionID string) int {
	return s.dir.CountFor(sessionID)
}

// AppendSignaling queues an opaque relay payload on a live session.
func (s *CallService) AppendSignaling(id, from string, payload json.RawMessage) (model.Session, error) {
	return s.reg.Mutate(id, model.AppendSignal(from, payload))
}

// ReadSignaling returns the session's signaling queue in append order.
func (s *CallService) ReadSignaling(id string) ([]model.Signal, error) {
	sess, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Signals, nil
}
