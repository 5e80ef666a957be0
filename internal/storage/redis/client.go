package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
)

// ErrDisabled redis.enabled 为 false
var ErrDisabled = errors.New("redis is not enabled")

const defaultPingTimeout = 5 * time.Second

// Client 死信存储使用的 Redis 连接
type Client struct {
	*redis.Client
}

// Options 由配置生成连接参数
func Options(cfg cfgpkg.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// NewClient 建立连接并 PING 一次，超时取 dialTimeout（未配置时 5s）
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	rdb := redis.NewClient(Options(cfg))

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{Client: rdb}, nil
}

func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// HealthCheck health.RedisPinger
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
