package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/health"
	redisstorage "github.com/taoyao-code/rf24-gateway/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewDeadLetterQueue 创建死信队列，client 为 nil 时返回 nil
func NewDeadLetterQueue(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.DeadLetterQueue {
	if client == nil {
		return nil
	}
	return redisstorage.NewDeadLetterQueue(client, cfg.DeadLetterKey, cfg.DeadLetterMax)
}

// AddRedisChecker 启用 Redis 时添加死信检查（可选项）
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client, dead *redisstorage.DeadLetterQueue, cfg cfgpkg.RedisConfig) {
	if redisClient == nil {
		return
	}
	var depth health.DeadLetterDepth
	if dead != nil {
		depth = dead
	}
	aggregator.AddOptional(health.NewRedisChecker(redisClient, depth, cfg.DeadLetterMax))
}
