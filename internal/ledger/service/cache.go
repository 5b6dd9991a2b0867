package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"polybridge.com/internal/ledger/domain"
)

type Cache interface {
	GetBalance(ctx context.Context, userID int64, currency string) (*domain.Balance, bool, error)
	SetBalance(ctx context.Context, b *domain.Balance, ttl time.Duration) error
	DelBalance(ctx context.Context, userID int64, currency string) error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisCache(c *redis.Client) Cache {
	return &redisCache{client: c}
}

func (r *redisCache) GetBalance(ctx context.Context, userID int64, currency string) (*domain.Balance, bool, error) {
	key := balanceKey(userID, currency)

	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	bal := &domain.Balance{}
	if err := json.Unmarshal(b, bal); err != nil {
		// 缓存脏了就删掉，避免持续命中错误
		_ = r.client.Del(ctx, key).Err()
		return nil, false, err
	}
	return bal, true, nil
}

func (r *redisCache) SetBalance(ctx context.Context, bal *domain.Balance, ttl time.Duration) error {
	b, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	// 加入随机时间 防止集中过期
	return r.client.Set(ctx, balanceKey(bal.UserID, bal.Currency), b, withJitter(ttl, 300*time.Millisecond)).Err()
}

func (r *redisCache) DelBalance(ctx context.Context, userID int64, currency string) error {
	return r.client.Del(ctx, balanceKey(userID, currency)).Err()
}

func balanceKey(userID int64, currency string) string {
	return fmt.Sprintf("ledger:bal:%d:%s", userID, currency)
}

func withJitter(ttl time.Duration, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	j := time.Duration(rand.Int63n(int64(jitter)))
	return ttl + j
}

// noopCache 不做缓存（测试/没配 redis 时用）
type noopCache struct{}

func NewNoopCache() Cache { return noopCache{} }

func (noopCache) GetBalance(context.Context, int64, string) (*domain.Balance, bool, error) {
	return nil, false, nil
}
func (noopCache) SetBalance(context.Context, *domain.Balance, time.Duration) error { return nil }
func (noopCache) DelBalance(context.Context, int64, string) error                  { return nil }
