package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// UserPreferences is what a lead chose explicitly in the bot, such as /lang.
type UserPreferences struct {
	Lang string `json:"lang,omitempty"`
}

type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID int64) (UserPreferences, error)
	SetPreferences(ctx context.Context, userID int64, prefs UserPreferences) error
}

type RedisUserStore struct {
	client *RedisClient
	ttl    time.Duration
}

var _ PreferenceStore = (*RedisUserStore)(nil)

func NewRedisUserStore(redisClient *RedisClient, ttlHours int) *RedisUserStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 90 * 24 * time.Hour
	}

	return &RedisUserStore{
		client: redisClient,
		ttl:    ttl,
	}
}

// GetPreferences returns zero preferences when nothing is stored.
func (s *RedisUserStore) GetPreferences(ctx context.Context, userID int64) (UserPreferences, error) {
	key := s.client.Key("user_prefs", strconv.FormatInt(userID, 10))
	var prefs UserPreferences
	if err := s.client.GetJSON(ctx, key, &prefs); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return UserPreferences{}, nil
		}
		return UserPreferences{}, err
	}
	return prefs, nil
}

func (s *RedisUserStore) SetPreferences(ctx context.Context, userID int64, prefs UserPreferences) error {
	key := s.client.Key("user_prefs", strconv.FormatInt(userID, 10))
	return s.client.SetJSONTTL(ctx, key, prefs, s.ttl)
}

// MemoryUserStore keeps preferences in process when Redis is not configured.
type MemoryUserStore struct {
	mu    sync.RWMutex
	prefs map[int64]UserPreferences
}

var _ PreferenceStore = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{prefs: make(map[int64]UserPreferences)}
}

func (s *MemoryUserStore) GetPreferences(_ context.Context, userID int64) (UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[userID], nil
}

func (s *MemoryUserStore) SetPreferences(_ context.Context, userID int64, prefs UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = prefs
	return nil
}
