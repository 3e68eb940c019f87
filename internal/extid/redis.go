package extid

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	mapKeyPrefix = "facet:extid:map:" // {tableID}:{externalID} -> internalID
	regKeyPrefix = "facet:extid:reg:" // {tableID} -> set of internal ids
)

// RedisMapper is a Redis-backed external-id mapping store. Registrations
// buffer locally and are written in one pipeline on Flush.
type RedisMapper struct {
	client redis.UniversalClient

	mu      sync.Mutex
	pending []registration
}

type registration struct {
	tableID    string
	internalID string
}

// NewRedisMapper creates a mapper over the given Redis client
func NewRedisMapper(client redis.UniversalClient) *RedisMapper {
	return &RedisMapper{client: client}
}

// Lookup translates an external identifier. A missing key is not an error.
func (m *RedisMapper) Lookup(ctx context.Context, tableID, externalID string) (string, bool, error) {
	internal, err := m.client.Get(ctx, mapKeyPrefix+tableID+":"+externalID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("external id lookup failed: %w", err)
	}
	return internal, true, nil
}

// Put stores an explicit external → internal mapping
func (m *RedisMapper) Put(ctx context.Context, tableID, externalID, internalID string) error {
	if err := m.client.Set(ctx, mapKeyPrefix+tableID+":"+externalID, internalID, 0).Err(); err != nil {
		return fmt.Errorf("external id store failed: %w", err)
	}
	return nil
}

// Add buffers a registration until the next Flush
func (m *RedisMapper) Add(_ context.Context, tableID, internalID string) error {
	m.mu.Lock()
	m.pending = append(m.pending, registration{tableID: tableID, internalID: internalID})
	m.mu.Unlock()
	return nil
}

// Flush writes all buffered registrations in one pipeline
func (m *RedisMapper) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	pipe := m.client.Pipeline()
	for _, reg := range pending {
		pipe.SAdd(ctx, regKeyPrefix+reg.tableID, reg.internalID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("external id flush failed: %w", err)
	}
	return nil
}
