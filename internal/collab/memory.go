package collab

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBlobStore is the in-process blob variant used for tests and for
// running without external services.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Put stores data keyed by its digest and returns the content reference.
func (s *MemoryBlobStore) Put(_ context.Context, data []byte, _ string, _ []string) (string, error) {
	ref := Digest(data)
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.blobs[ref] = cp
	s.mu.Unlock()
	return ref, nil
}

// Get retrieves a stored payload.
func (s *MemoryBlobStore) Get(_ context.Context, contentRef string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[contentRef]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

type memoryLedgerEvent struct {
	event          LedgerEvent
	subjectID      string
	counterpartyID string
}

// MemoryLedger is the in-process ledger variant.
type MemoryLedger struct {
	mu     sync.Mutex
	events []memoryLedgerEvent
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// RecordEvent appends an event and returns its receipt.
func (l *MemoryLedger) RecordEvent(_ context.Context, subjectID, counterpartyID string, payload []byte, tags []string) (*LedgerReceipt, error) {
	receipt := &LedgerReceipt{
		TransactionRef: uuid.New().String(),
		PayloadDigest:  Digest(payload),
		TagsDigest:     TagsDigest(tags),
	}
	cpTags := make([]string, len(tags))
	copy(cpTags, tags)

	l.mu.Lock()
	l.events = append(l.events, memoryLedgerEvent{
		event: LedgerEvent{
			RecordID:       uuid.New().String(),
			TransactionRef: receipt.TransactionRef,
			ContentRef:     ContentRefFromTags(tags),
			Timestamp:      time.Now(),
			Tags:           cpTags,
		},
		subjectID:      subjectID,
		counterpartyID: counterpartyID,
	})
	l.mu.Unlock()
	return receipt, nil
}

// QueryEventsFor returns every event the subject appears in, newest first.
func (l *MemoryLedger) QueryEventsFor(_ context.Context, subjectID, _ string) ([]LedgerEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LedgerEvent
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if e.subjectID == subjectID || e.counterpartyID == subjectID {
			out = append(out, e.event)
		}
	}
	return out, nil
}
