package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	tokenKeyPrefix = "apilogin:token:"
	userKeyPrefix  = "apilogin:user:"

	maxIssueRetries = 5
)

// RedisStore implements Store on Redis.
// Each token lives under its own key with a TTL matching its expiry, and a
// per-user key points at the user's current token.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
}

// NewRedisStore creates a new Redis-backed token store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, clock: time.Now}
}

type redisToken struct {
	UserID    int64  `json:"userid"`
	UserAgent string `json:"useragent"`
	Expires   int64  `json:"expires"`
	Redirect  string `json:"redirect,omitempty"`
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

func userKey(userID int64) string {
	return fmt.Sprintf("%s%d", userKeyPrefix, userID)
}

// Issue stores the token and drops the user's previous token in one transaction
func (s *RedisStore) Issue(ctx context.Context, t *LoginToken) error {
	data, err := json.Marshal(redisToken{
		UserID:    t.UserID,
		UserAgent: t.UserAgent,
		Expires:   t.Expires.Unix(),
		Redirect:  t.Redirect,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal login token: %w", err)
	}

	ttl := t.Expires.Sub(s.clock())
	if ttl <= 0 {
		return fmt.Errorf("login token already expired")
	}

	uk := userKey(t.UserID)
	txf := func(tx *redis.Tx) error {
		previous, err := tx.Get(ctx, uk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" && previous != t.Token {
				pipe.Del(ctx, tokenKey(previous))
			}
			pipe.Set(ctx, tokenKey(t.Token), data, ttl)
			pipe.Set(ctx, uk, t.Token, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxIssueRetries; i++ {
		err = s.client.Watch(ctx, txf, uk)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to issue login token: %w", err)
		}
	}
	return fmt.Errorf("failed to issue login token: %w", err)
}

// Claim removes the token with GETDEL so only one caller ever sees it
func (s *RedisStore) Claim(ctx context.Context, token string) (*LoginToken, error) {
	data, err := s.client.GetDel(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim login token: %w", err)
	}

	var stored redisToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal login token: %w", err)
	}

	return &LoginToken{
		Token:     token,
		UserID:    stored.UserID,
		UserAgent: stored.UserAgent,
		Expires:   time.Unix(stored.Expires, 0),
		Redirect:  stored.Redirect,
	}, nil
}

// Purge is a no-op; Redis expires keys on its own
func (s *RedisStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
