package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"polybridge.com/pkg/xerr"
)

// Session 校验通过后拿到的会话信息
type Session struct {
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validator 会话校验接口，只有读接口（流水/余额/充值查询）需要
// 签发不在本服务职责内
type Validator interface {
	Validate(ctx context.Context, token string) (*Session, error)
}

type redisValidator struct {
	client *redis.Client
}

func NewRedisValidator(c *redis.Client) Validator {
	return &redisValidator{client: c}
}

func (v *redisValidator) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, xerr.New(xerr.AuthError, "session token required")
	}

	b, err := v.client.Get(ctx, "session:"+token).Bytes()
	if err == redis.Nil {
		return nil, xerr.New(xerr.AuthError, "invalid or expired session")
	}
	if err != nil {
		return nil, xerr.New(xerr.DbError, "session store unavailable")
	}

	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, xerr.New(xerr.AuthError, "invalid session payload")
	}
	if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(time.Now()) {
		return nil, xerr.New(xerr.AuthError, "invalid or expired session")
	}
	return &s, nil
}
