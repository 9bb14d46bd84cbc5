package model

import (
	"encoding/json"
	"time"
)

// TransitionFunc validates and applies one lifecycle mutation in place.
// It returns the event tag to broadcast on success. The registry applies it
// under the session's lock, bumps StateVersion on acceptance, and never
// mutates anything on rejection.
type TransitionFunc func(s *Session, now time.Time) (EventType, error)

// Answer transitions initiating/ringing -> connected. Only the designated
// respondent may answer.
func Answer(requester string) TransitionFunc {
	return func(s *Session, now time.Time) (EventType, error) {
		if s.Status == CallConnected {
			return EventNone, ErrAlreadyAnswered
		}
		if s.Status.Terminal() {
			return EventNone, ErrAlreadyEnded
		}
		if requester != s.RespondentID {
			return EventNone, ErrUnauthorized
		}
		if s.Status != CallInitiating && s.Status != CallRinging {
			return EventNone, ErrConflict
		}
		t := now
		s.Status = CallConnected
		s.AnsweredAt = &t
		return EventCallAnswered, nil
	}
}

// Ring transitions initiating -> ringing once the respondent's device has
// been reached. Either participant may report it.
func Ring(requester string) TransitionFunc {
	return func(s *Session, now time.Time) (EventType, error) {
		if s.Status.Terminal() {
			return EventNone, ErrAlreadyEnded
		}
		if !s.Participant(requester) {
			return EventNone, ErrUnauthorized
		}
		if s.Status != CallInitiating {
			return EventNone, ErrConflict
		}
		s.Status = CallRinging
		return EventStatusUpdate, nil
	}
}

// End transitions any non-terminal status -> ended. Either participant may
// hang up. Duration is computed only when the call was connected.
func End(requester string) TransitionFunc {
	return func(s *Session, now time.Time) (EventType, error) {
		if s.Status.Terminal() {
			return EventNone, ErrAlreadyEnded
		}
		if !s.Participant(requester) {
			return EventNone, ErrUnauthorized
		}
		t := now
		if s.Status == CallConnected {
			s.DurationSeconds = int64(now.Sub(s.StartedAt) / time.Second)
		}
		s.Status = CallEnded
		s.EndedAt = &t
		s.EndedBy = requester
		return EventCallEnded, nil
	}
}

// Missed concludes an unanswered session as missed. When a ring timeout
// fires is a policy decision of the surrounding application; the core only
// enforces that a connected call can no longer be missed.
func Missed(requester string) TransitionFunc {
	return func(s *Session, now time.Time) (EventType, error) {
		if s.Status.Terminal() {
			return EventNone, ErrAlreadyEnded
		}
		if !s.Participant(requester) {
			return EventNone, ErrUnauthorized
		}
		if s.Status != CallInitiating && s.Status != CallRinging {
			return EventNone, ErrConflict
		}
		t := now
		s.Status = CallMissed
		s.EndedAt = &t
		s.EndedBy = requester
		return EventCallEnded, nil
	}
}

// AppendSignal queues an opaque relay payload for the counterparty. Accepted
// only while the session is live; the queue is never mutated after
// conclusion. Signaling appends bump StateVersion but are not broadcast.
func AppendSignal(from string, payload json.RawMessage) TransitionFunc {
	return func(s *Session, now time.Time) (EventType, error) {
		if s.Status.Terminal() {
			return EventNone, ErrAlreadyEnded
		}
		if !s.Participant(from) {
			return EventNone, ErrUnauthorized
		}
		s.Signals = append(s.Signals, Signal{
			From:    from,
			Payload: payload,
			SentAt:  now,
		})
		return EventNone, nil
	}
}
