package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tutorlink/backend/internal/cache"
)

// Store persists session records. Records outlive the live browser
// handle so a paused login survives an API restart.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

const (
	sessionKeyPrefix = "session:"
	userSetPrefix    = "user_sessions:"

	// recordTTL bounds how long an abandoned record lingers. The
	// browser provider applies its own idle timeout to the handle.
	recordTTL = 24 * time.Hour
)

// RedisStore persists records as JSON in Redis, one key per session
// plus a per-user id set for enumeration.
type RedisStore struct {
	redis *cache.Redis
}

// NewRedisStore creates a RedisStore on the shared cache connection.
func NewRedisStore(redis *cache.Redis) *RedisStore {
	return &RedisStore{redis: redis}
}

func (s *RedisStore) Save(ctx context.Context, record *Record) error {
	record.UpdatedAt = time.Now()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+record.ID.String(), data, recordTTL); err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}

	userKey := userSetPrefix + record.UserID.String()
	pipe := s.redis.Client.Pipeline()
	pipe.SAdd(ctx, userKey, record.ID.String())
	pipe.Expire(ctx, userKey, recordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index session record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	data, err := s.redis.Get(ctx, sessionKeyPrefix+id.String())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	ids, err := s.redis.Client.SMembers(ctx, userSetPrefix+userID.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session ids: %w", err)
	}

	var records []Record
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		record, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Record expired; drop the stale index entry.
			s.redis.Client.SRem(ctx, userSetPrefix+userID.String(), raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.redis.Client.Pipeline()
	pipe.Del(ctx, sessionKeyPrefix+id.String())
	pipe.SRem(ctx, userSetPrefix+record.UserID.String(), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]Record)}
}

func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.UpdatedAt = time.Now()
	s.records[record.ID] = *record
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for _, record := range s.records {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
