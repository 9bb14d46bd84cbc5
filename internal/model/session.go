package model

import (
	"encoding/json"
	"time"
)

type CallStatus string

const (
	CallInitiating CallStatus = "initiating"
	CallRinging    CallStatus = "ringing"
	CallConnected  CallStatus = "connected"
	CallEnded      CallStatus = "ended"
	CallMissed     CallStatus = "missed"
)

// Terminal reports whether no further mutation is accepted in this status.
func (s CallStatus) Terminal() bool {
	return s == CallEnded || s == CallMissed
}

type CallKind string

const (
	KindVoice CallKind = "voice"
	KindVideo CallKind = "video"
)

// ValidKind reports whether k is a supported call kind.
func ValidKind(k CallKind) bool {
	return k == KindVoice || k == KindVideo
}

// EventType tags a broadcast delivery. The authoritative state is always the
// full session snapshot; the tag is metadata for observers.
type EventType string

const (
	EventCallAnswered EventType = "call-answered"
	EventCallEnded    EventType = "call-ended"
	EventStatusUpdate EventType = "status-update"
	EventSnapshot     EventType = "snapshot"

	// EventNone marks an accepted mutation that is not broadcast
	// (signaling appends).
	EventNone EventType = ""
)

// Signal is one opaque relay payload queued by a participant while the
// session is live.
type Signal struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}

// DurableRef holds the references returned by the durable collaborators
// after a successful handoff.
type DurableRef struct {
	ContentRef     string    `json:"contentRef"`
	TransactionRef string    `json:"transactionRef"`
	PayloadDigest  string    `json:"payloadDigest"`
	TagsDigest     string    `json:"tagsDigest"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// Session is one voice/video interaction between two parties, tracked from
// creation to conclusion. The registry owns the authoritative copy; external
// readers only ever see clones.
type Session struct {
	ID             string     `json:"id"`
	InitiatorID    string     `json:"initiatorId"`
	RespondentID   string     `json:"respondentId"`
	InitiatorRole  string     `json:"initiatorRole"`
	RespondentRole string     `json:"respondentRole"`
	Kind           CallKind   `json:"kind"`
	Status         CallStatus `json:"status"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  time.Time  `json:"startedAt"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`

	DurationSeconds int64  `json:"durationSeconds"`
	EndedBy         string `json:"endedBy,omitempty"`

	// StateVersion starts at 1 and increments exactly once per accepted
	// mutation. Observers discard deliveries whose version is not greater
	// than the last one applied.
	StateVersion    int64     `json:"stateVersion"`
	LastStateUpdate time.Time `json:"lastStateUpdate"`

	Signals []Signal `json:"signals,omitempty"`

	DurableRef      *DurableRef `json:"durableRef,omitempty"`
	HandoffFallback bool        `json:"handoffFallback,omitempty"`
}

// Participant reports whether userID is one of the two call parties.
func (s *Session) Participant(userID string) bool {
	return userID == s.InitiatorID || userID == s.RespondentID
}

// Clone returns a defensive copy safe to hand outside the registry.
func (s *Session) Clone() Session {
	out := *s
	if s.AnsweredAt != nil {
		t := *s.AnsweredAt
		out.AnsweredAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.Signals != nil {
		out.Signals = make([]Signal, len(s.Signals))
		copy(out.Signals, s.Signals)
	}
	if s.DurableRef != nil {
		r := *s.DurableRef
		out.DurableRef = &r
	}
	return out
}
