package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"carelink/internal/collab"
	"carelink/internal/model"
)

// CallRecord is one durable call record re-hydrated from the collaborators.
// Record is nil when the blob payload could not be retrieved; the ledger
// metadata is still returned.
type CallRecord struct {
	RecordID       string                 `json:"recordId"`
	TransactionRef string                 `json:"transactionRef"`
	ContentRef     string                 `json:"contentRef,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Tags           []string               `json:"tags"`
	Record         *model.FinalizedRecord `json:"record,omitempty"`
}

// RecordsForUser queries the ledger for the user's events, keeps the ones
// tagged as call records, and re-hydrates each payload from the blob store.
// Blob retrieval failure degrades to ledger-only metadata.
func (s *CallService) RecordsForUser(ctx context.Context, userID, role string) ([]CallRecord, error) {
	events, err := s.ledger.QueryEventsFor(ctx, userID, role)
	if err != nil {
		return nil, err
	}

	records := make([]CallRecord, 0, len(events))
	for _, ev := range events {
		if !collab.HasTag(ev.Tags, RecordTag) {
			continue
		}
		rec := CallRecord{
			RecordID:       ev.RecordID,
			TransactionRef: ev.TransactionRef,
			ContentRef:     ev.ContentRef,
			Timestamp:      ev.Timestamp,
			Tags:           ev.Tags,
		}
		if ev.ContentRef != "" {
			if data, err := s.blobs.Get(ctx, ev.ContentRef); err != nil {
				log.Printf("records: payload %s unavailable, returning metadata only: %v", ev.ContentRef, err)
			} else {
				var fr model.FinalizedRecord
				if err := json.Unmarshal(data, &fr); err != nil {
					log.Printf("records: payload %s undecodable: %v", ev.ContentRef, err)
				} else {
					rec.Record = &fr
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
