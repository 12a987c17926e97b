package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

const sessionKeyPrefix = "auth:session:"

// SessionRepo implements repository.SessionRepository on Redis. Sessions
// expire naturally via TTL; Delete revokes them early on logout.
type SessionRepo struct {
	client redis.UniversalClient
}

func NewSessionRepo(client redis.UniversalClient) (*SessionRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for SessionRepo")
	}
	return &SessionRepo{client: client}, nil
}

func (r *SessionRepo) Save(ctx context.Context, sessionID string, userID uint, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKeyPrefix+sessionID, userID, ttl).Err()
}

func (r *SessionRepo) Check(ctx context.Context, sessionID string) (uint, error) {
	val, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, apperrors.ErrNotFound
		}
		return 0, err
	}
	userID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt session value for %s: %w", sessionID, err)
	}
	return uint(userID), nil
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
