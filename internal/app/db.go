package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/migrate"
	pgstorage "github.com/taoyao-code/rf24-gateway/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并按需执行迁移；未启用数据库时返回 nil
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	if !cfg.Enabled {
		log.Info("database is disabled, frame log off")
		return nil, nil
	}
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.AutoMigrate {
		runner := migrate.Runner{Dir: cfg.MigrationsDir, Logger: log}
		if cfg.MigrationsDir == "" {
			runner.FS = migrate.Embedded()
		}
		applied, err := runner.Up(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			return dbpool, err
		}
		log.Info("db migrations applied", zap.Int64s("versions", applied))
	}
	return dbpool, nil
}

// NewFrameLog 帧流水仓储；dbpool 为 nil 时返回 nil
func NewFrameLog(dbpool *pgxpool.Pool) *pgstorage.FrameLog {
	if dbpool == nil {
		return nil
	}
	return &pgstorage.FrameLog{Pool: dbpool}
}
