package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SevenofThr4wn/HardwareStore/internal/db/bunx"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/redis/go-redis/v9"
)

// OpenRedis connects and pings a Redis server.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// RedisSessionStore implements SessionRepository on Redis. Sessions are
// stored as JSON under session:{token hash} with a TTL matching their
// expiry, plus a session-id:{id} pointer used by Revoke.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) key(tokenHash string) string {
	return "session:" + tokenHash
}

func (s *RedisSessionStore) idKey(id string) string {
	return "session-id:" + id
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.Session) error {
	if session.TokenHash == "" || session.Subject == "" {
		return fmt.Errorf("create session: missing token hash or subject")
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("create session: expires_at must be in the future")
	}
	if session.ID == "" {
		session.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastUsedAt.IsZero() {
		session.LastUsedAt = now
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("create session: marshal: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(session.TokenHash), data, ttl)
		pipe.Set(ctx, s.idKey(session.ID), session.TokenHash, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	val, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("get session by token: unmarshal: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) tokenHashFor(ctx context.Context, id string) (string, error) {
	hash, err := s.client.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return hash, err
}

func (s *RedisSessionStore) UpdateLastUsed(ctx context.Context, id string) error {
	hash, err := s.tokenHashFor(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update last used: %w", err)
	}

	session, err := s.GetByTokenHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update last used: %w", err)
	}
	session.LastUsedAt = time.Now().UTC()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("update last used: marshal: %w", err)
	}
	if err := s.client.SetArgs(ctx, s.key(hash), data, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("update last used: %w", err)
	}
	return nil
}

// Revoke deletes the session. A revoked session is indistinguishable from
// an expired one in Redis.
func (s *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	hash, err := s.tokenHashFor(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := s.client.Del(ctx, s.key(hash), s.idKey(id)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires keys itself.
func (s *RedisSessionStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}
