package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown - окно тишины на ключ (например, аккаунт)
//
// Первый Acquire в окне проходит, последующие отклоняются до истечения окна.
// Используется для ограничения частоты пересборки фронтенда DEX.
//
//	ok, retryAfter, err := cd.Acquire(ctx, "account:42")
//	if !ok {
//	    // повторить через retryAfter
//	}
type Cooldown interface {
	// Acquire занимает окно для key. ok=false означает, что окно занято,
	// retryAfter - сколько осталось ждать.
	Acquire(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)

	// Reset освобождает окно досрочно (например, если публикация не удалась)
	Reset(ctx context.Context, key string) error

	// Window возвращает длительность окна
	Window() time.Duration
}

// ============================================================
// MemoryCooldown
// ============================================================

// MemoryCooldown хранит окна в памяти процесса
//
// Подходит для одного инстанса и тестов. Для нескольких инстансов API
// используйте RedisCooldown.
type MemoryCooldown struct {
	window  time.Duration
	mu      sync.Mutex
	entries map[string]time.Time // key -> момент окончания окна
	now     func() time.Time
}

// NewMemoryCooldown создает in-memory cooldown
func NewMemoryCooldown(window time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		window:  window,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Acquire реализует Cooldown
func (c *MemoryCooldown) Acquire(_ context.Context, key string) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.entries[key]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}

	c.entries[key] = now.Add(c.window)
	c.sweep(now)
	return true, 0, nil
}

// Reset реализует Cooldown
func (c *MemoryCooldown) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Window реализует Cooldown
func (c *MemoryCooldown) Window() time.Duration {
	return c.window
}

// sweep удаляет истекшие окна. Вызывается под lock'ом.
func (c *MemoryCooldown) sweep(now time.Time) {
	if len(c.entries) < 1024 {
		return
	}
	for k, until := range c.entries {
		if !now.Before(until) {
			delete(c.entries, k)
		}
	}
}

// ============================================================
// RedisCooldown
// ============================================================

// redisClient - подмножество команд go-redis, нужное cooldown
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCooldown разделяет окна между всеми инстансами API
//
// Acquire = SET key 1 NX PX window: атомарно на стороне Redis.
type RedisCooldown struct {
	client redisClient
	prefix string
	window time.Duration
}

// NewRedisCooldown создает cooldown поверх Redis
//
// client - *redis.Client, *redis.ClusterClient или любой совместимый клиент.
func NewRedisCooldown(client redisClient, prefix string, window time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, prefix: prefix, window: window}
}

// Acquire реализует Cooldown
func (c *RedisCooldown) Acquire(ctx context.Context, key string) (bool, time.Duration, error) {
	k := c.prefix + key

	ok, err := c.client.SetNX(ctx, k, 1, c.window).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown acquire %s: %w", key, err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := c.client.PTTL(ctx, k).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, fmt.Errorf("cooldown ttl %s: %w", key, err)
	}
	// Ключ мог истечь между SETNX и PTTL (-2) или быть без TTL (-1)
	if ttl <= 0 {
		ttl = c.window
	}
	return false, ttl, nil
}

// Reset реализует Cooldown
func (c *RedisCooldown) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("cooldown reset %s: %w", key, err)
	}
	return nil
}

// Window реализует Cooldown
func (c *RedisCooldown) Window() time.Duration {
	return c.window
}

var (
	_ Cooldown = (*MemoryCooldown)(nil)
	_ Cooldown = (*RedisCooldown)(nil)
)
