package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ledgerDoc struct {
	RecordID       string    `bson:"recordId"`
	TransactionRef string    `bson:"transactionRef"`
	SubjectID      string    `bson:"subjectId"`
	CounterpartyID string    `bson:"counterpartyId"`
	ContentRef     string    `bson:"contentRef,omitempty"`
	Payload        []byte    `bson:"payload"`
	PayloadDigest  string    `bson:"payloadDigest"`
	TagsDigest     string    `bson:"tagsDigest"`
	Tags           []string  `bson:"tags"`
	Timestamp      time.Time `bson:"timestamp"`
}

// MongoLedger is the production ledger adapter: one append-only collection
// of timestamped event documents.
type MongoLedger struct {
	collection *mongo.Collection
}

// NewMongoLedger creates a ledger over the given database.
func NewMongoLedger(db *mongo.Database) *MongoLedger {
	return &MongoLedger{
		collection: db.Collection("ledger_events"),
	}
}

// RecordEvent appends an event and returns its transaction reference and
// digests.
func (l *MongoLedger) RecordEvent(ctx context.Context, subjectID, counterpartyID string, payload []byte, tags []string) (*LedgerReceipt, error) {
	doc := ledgerDoc{
		RecordID:       uuid.New().String(),
		TransactionRef: uuid.New().String(),
		SubjectID:      subjectID,
		CounterpartyID: counterpartyID,
		ContentRef:     ContentRefFromTags(tags),
		Payload:        payload,
		PayloadDigest:  Digest(payload),
		TagsDigest:     TagsDigest(tags),
		Tags:           tags,
		Timestamp:      time.Now(),
	}

	if _, err := l.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to record ledger event: %w", err)
	}

	return &LedgerReceipt{
		TransactionRef: doc.TransactionRef,
		PayloadDigest:  doc.PayloadDigest,
		TagsDigest:     doc.TagsDigest,
	}, nil
}

// QueryEventsFor returns every event the subject appears in, newest first.
// The role is stored as a tag at record time, so callers filtering by role
// match on it there.
func (l *MongoLedger) QueryEventsFor(ctx context.Context, subjectID, subjectRole string) ([]LedgerEvent, error) {
	filter := map[string]interface{}{
		"$or": []map[string]interface{}{
			{"subjectId": subjectID},
			{"counterpartyId": subjectID},
		},
	}
	opts := options.Find().SetSort(map[string]interface{}{"timestamp": -1})

	cursor, err := l.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []LedgerEvent
	for cursor.Next(ctx) {
		var doc ledgerDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode ledger event: %w", err)
		}
		events = append(events, LedgerEvent{
			RecordID:       doc.RecordID,
			TransactionRef: doc.TransactionRef,
			ContentRef:     doc.ContentRef,
			Timestamp:      doc.Timestamp,
			Tags:           doc.Tags,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger events: %w", err)
	}
	return events, nil
}
