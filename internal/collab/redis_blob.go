package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type blobMeta struct {
	Name     string    `json:"name"`
	Tags     []string  `json:"tags"`
	StoredAt time.Time `json:"storedAt"`
}

// RedisBlobStore is the production blob adapter: payloads are addressed by
// their sha-256 and kept alongside a small metadata record.
type RedisBlobStore struct {
	client *redis.Client
}

// NewRedisBlobStore creates a blob store over the given redis client.
func NewRedisBlobStore(client *redis.Client) *RedisBlobStore {
	return &RedisBlobStore{client: client}
}

func blobKey(ref string) string {
	return fmt.Sprintf("blob:%s", ref)
}

// Put stores data and returns its content reference. Storing the same bytes
// twice yields the same reference.
func (s *RedisBlobStore) Put(ctx context.Context, data []byte, name string, tags []string) (string, error) {
	ref := Digest(data)
	meta, err := json.Marshal(blobMeta{Name: name, Tags: tags, StoredAt: time.Now()})
	if err != nil {
		return "", err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, blobKey(ref), data, 0)
	pipe.Set(ctx, blobKey(ref)+":meta", meta, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return ref, nil
}

// Get retrieves the payload for a content reference.
func (s *RedisBlobStore) Get(ctx context.Context, contentRef string) ([]byte, error) {
	data, err := s.client.Get(ctx, blobKey(contentRef)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve blob: %w", err)
	}
	return data, nil
}
