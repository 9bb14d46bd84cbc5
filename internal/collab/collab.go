// Package collab holds the narrow contracts for the external collaborators
// the call core depends on (opaque blob storage and the durable ledger),
// plus the production adapters and in-memory variants.
package collab

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// ContentTagPrefix marks the ledger tag that carries the blob content
// reference for a recorded event.
const ContentTagPrefix = "content:"

// BlobStore stores opaque payloads addressed by content.
type BlobStore interface {
	Put(ctx context.Context, data []byte, name string, tags []string) (string, error)
	Get(ctx context.Context, contentRef string) ([]byte, error)
}

// LedgerReceipt is returned by the ledger when an event is recorded.
type LedgerReceipt struct {
	TransactionRef string
	PayloadDigest  string
	TagsDigest     string
}

// LedgerEvent is one timestamped record returned by a ledger query.
type LedgerEvent struct {
	RecordID       string
	TransactionRef string
	ContentRef     string
	Timestamp      time.Time
	Tags           []string
}

// Ledger timestamps and anchors finalized records.
type Ledger interface {
	RecordEvent(ctx context.Context, subjectID, counterpartyID string, payload []byte, tags []string) (*LedgerReceipt, error)
	QueryEventsFor(ctx context.Context, subjectID, subjectRole string) ([]LedgerEvent, error)
}

// Digest returns the hex sha-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TagsDigest returns the hex sha-256 over the joined tag list.
func TagsDigest(tags []string) string {
	return Digest([]byte(strings.Join(tags, ",")))
}

// ContentRefFromTags extracts the blob reference a record was tagged with,
// or "" when absent.
func ContentRefFromTags(tags []string) string {
	for _, t := range tags {
		if strings.HasPrefix(t, ContentTagPrefix) {
			return strings.TrimPrefix(t, ContentTagPrefix)
		}
	}
	return ""
}

// HasTag reports whether tags contains tag.
func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
