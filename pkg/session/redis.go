package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pragati-platform/identity/pkg/auth"
)

const (
	sessionKeyPrefix = "identity:session:"
	familyKeyPrefix  = "identity:family:"
	// familyGrace keeps the family index alive slightly longer than
	// its sessions so reuse detection can still find siblings.
	familyGrace = time.Hour
)

// RedisStore persists sessions in redis with per-key TTLs, so expired
// sessions disappear on their own and DeleteExpired only handles
// stragglers with skewed expiries.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id string) string    { return sessionKeyPrefix + id }
func familyKey(fid string) string    { return familyKeyPrefix + fid }
func sessionTTL(s *Session) time.Duration {
	ttl := time.Until(s.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, sessionTTL(s))
	pipe.SAdd(ctx, familyKey(s.FamilyID), s.ID)
	pipe.Expire(ctx, familyKey(s.FamilyID), sessionTTL(s)+familyGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

// Rotate runs a WATCH/MULTI transaction so that of two concurrent
// refresh calls only one installs its new token id.
func (r *RedisStore) Rotate(ctx context.Context, id, expected, newRefreshID string, expiresAt time.Time) error {
	key := sessionKey(id)
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return auth.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode session %s: %w", id, err)
		}
		if s.RefreshID != expected {
			return auth.ErrSessionConflict
		}
		s.RefreshID = newRefreshID
		s.ExpiresAt = expiresAt
		s.RotatedAt = time.Now().UTC()
		updated, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, sessionTTL(&s))
			pipe.Expire(ctx, familyKey(s.FamilyID), sessionTTL(&s)+familyGrace)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return auth.ErrSessionConflict
	}
	return err
}

func (r *RedisStore) Revoke(ctx context.Context, id string) (bool, error) {
	s, err := r.Get(ctx, id)
	if errors.Is(err, auth.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.Revoked {
		return false, nil
	}
	s.Revoked = true
	data, err := json.Marshal(s)
	if err != nil {
		return false, err
	}
	if err := r.client.Set(ctx, sessionKey(id), data, sessionTTL(s)).Err(); err != nil {
		return false, fmt.Errorf("failed to revoke session %s: %w", id, err)
	}
	return true, nil
}

func (r *RedisStore) RevokeFamily(ctx context.Context, familyID string) error {
	ids, err := r.client.SMembers(ctx, familyKey(familyID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list family %s: %w", familyID, err)
	}
	for _, id := range ids {
		if _, err := r.Revoke(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpired scans for sessions whose recorded expiry passed but
// whose redis TTL has not fired, which happens when expiries were
// shortened after the key was written.
func (r *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var removed int
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, err
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		if s.ExpiresAt.Before(now) {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return removed, err
			}
			r.client.SRem(ctx, familyKey(s.FamilyID), s.ID)
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}
