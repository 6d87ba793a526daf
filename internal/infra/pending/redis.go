package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-community-bot/internal/domain"
)

// RedisStore хранит ожидаемые ответы пользователей в Redis с TTL,
// так что зависшие диалоги истекают сами.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis создаёт хранилище с указанным сроком жизни записей.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(userID int64) string {
	return fmt.Sprintf("pending:%d", userID)
}

// Put записывает ожидание, затирая предыдущее.
func (s *RedisStore) Put(ctx context.Context, userID int64, p domain.PendingInteraction) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	return s.client.Set(ctx, key(userID), payload, s.ttl).Err()
}

// Get возвращает ожидание пользователя или domain.ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, userID int64) (domain.PendingInteraction, error) {
	raw, err := s.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PendingInteraction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PendingInteraction{}, err
	}
	var p domain.PendingInteraction
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.PendingInteraction{}, fmt.Errorf("decode pending: %w", err)
	}
	return p, nil
}

// Delete удаляет ожидание пользователя.
func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, key(userID)).Err()
}
