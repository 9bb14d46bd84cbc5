package model

import "time"

// FinalizedRecord is the immutable snapshot of a concluded session prepared
// for the durable handoff. Constructed once, never mutated.
type FinalizedRecord struct {
	SessionID       string     `json:"sessionId"`
	InitiatorID     string     `json:"initiatorId"`
	RespondentID    string     `json:"respondentId"`
	InitiatorRole   string     `json:"initiatorRole"`
	RespondentRole  string     `json:"respondentRole"`
	Kind            CallKind   `json:"kind"`
	Status          CallStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds int64      `json:"durationSeconds"`
	EndedBy         string     `json:"endedBy,omitempty"`
	StateVersion    int64      `json:"stateVersion"`
	SignalCount     int        `json:"signalCount"`
}

// NewFinalizedRecord builds the handoff payload from a concluded session
// snapshot.
func NewFinalizedRecord(s Session) FinalizedRecord {
	return FinalizedRecord{
		SessionID:       s.ID,
		InitiatorID:     s.InitiatorID,
		RespondentID:    s.RespondentID,
		InitiatorRole:   s.InitiatorRole,
		RespondentRole:  s.RespondentRole,
		Kind:            s.Kind,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
		AnsweredAt:      s.AnsweredAt,
		EndedAt:         s.EndedAt,
		DurationSeconds: s.DurationSeconds,
		EndedBy:         s.EndedBy,
		StateVersion:    s.StateVersion,
		SignalCount:     len(s.Signals),
	}
}
