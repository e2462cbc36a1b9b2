package linkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/postpilot/link-server-go/internal/model"
	"github.com/postpilot/link-server-go/internal/util"
)

const redisKeyPrefix = "pendinglink:"

// RedisStore is the production pending-link store. Entries are written
// with twice the logical TTL so TakeCompleted can distinguish a stale
// link from a missing one; redis evicts anything older on its own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	now func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(sessionID, platform string) string {
	return redisKeyPrefix + util.HashToken(sessionID) + ":" + platform
}

func (s *RedisStore) Begin(ctx context.Context, sessionID, platform string) (string, error) {
	state, err := util.GenerateToken()
	if err != nil {
		return "", err
	}

	link := &model.PendingLink{
		Platform:  platform,
		State:     state,
		CreatedAt: s.now(),
	}
	if err := s.write(ctx, sessionID, platform, link, 2*s.ttl); err != nil {
		return "", err
	}
	return state, nil
}

func (s *RedisStore) VerifyState(ctx context.Context, sessionID, platform, state string) error {
	link, err := s.read(ctx, sessionID, platform)
	if err != nil {
		return err
	}
	if link == nil || link.Platform != platform {
		return ErrStateMismatch
	}
	if !util.ConstantTimeEqual(link.State, state) {
		return ErrStateMismatch
	}
	return nil
}

func (s *RedisStore) AttachCallbackResult(ctx context.Context, sessionID, platform, state string, bundle model.TokenBundle, profile model.RemoteProfile) error {
	link, err := s.read(ctx, sessionID, platform)
	if err != nil {
		return err
	}
	if link == nil || link.Platform != platform || !util.ConstantTimeEqual(link.State, state) {
		return ErrStateMismatch
	}

	attach(link, bundle, profile)

	// Keep the original deadline: attaching must not extend the window.
	return s.write(ctx, sessionID, platform, link, redis.KeepTTL)
}

func (s *RedisStore) TakeCompleted(ctx context.Context, sessionID, platform string) (*model.PendingLink, error) {
	data, err := s.client.GetDel(ctx, s.key(sessionID, platform)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take pending link: %w", err)
	}

	var link model.PendingLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("decode pending link: %w", err)
	}

	if s.now().Sub(link.CreatedAt) > s.ttl {
		return nil, ErrExpired
	}
	return &link, nil
}

// DeleteExpired is a no-op: redis expires entries natively.
func (s *RedisStore) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *RedisStore) read(ctx context.Context, sessionID, platform string) (*model.PendingLink, error) {
	data, err := s.client.Get(ctx, s.key(sessionID, platform)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending link: %w", err)
	}

	var link model.PendingLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("decode pending link: %w", err)
	}
	return &link, nil
}

func (s *RedisStore) write(ctx context.Context, sessionID, platform string, link *model.PendingLink, ttl time.Duration) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode pending link: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID, platform), data, ttl).Err(); err != nil {
		return fmt.Errorf("write pending link: %w", err)
	}
	return nil
}
