package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	versionTable = "rf24_schema_migrations"
	upSuffix     = "_up.sql"
	// advisoryLockKey 多个网关实例共用一个库时串行执行迁移
	advisoryLockKey int64 = 0x52463234
)

var (
	ErrNoSource         = errors.New("no migration source")
	ErrDuplicateVersion = errors.New("duplicate migration version")
)

//go:embed sql/*_up.sql
var embedded embed.FS

// Embedded 随二进制发布的迁移脚本（帧流水表）
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration 一个向上迁移脚本，文件名形如 0001_rf24_frame_log_up.sql
type Migration struct {
	Version int64
	Name    string
	Path    string
}

// parseName 解析 <version>_<name>_up.sql；不符合格式的文件忽略
func parseName(file string) (version int64, name string, ok bool) {
	if !strings.HasSuffix(file, upSuffix) {
		return 0, "", false
	}
	head, rest, found := strings.Cut(strings.TrimSuffix(file, upSuffix), "_")
	if !found {
		return 0, "", false
	}
	v, err := strconv.ParseInt(head, 10, 64)
	if err != nil || v <= 0 {
		return 0, "", false
	}
	return v, rest, true
}

// Discover 收集 fsys 中的向上迁移并按版本排序，同一版本出现两次时报错
func Discover(fsys fs.FS) ([]Migration, error) {
	var out []Migration
	seen := make(map[int64]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		v, name, ok := parseName(path.Base(p))
		if !ok {
			return nil
		}
		if prev, dup := seen[v]; dup {
			return fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateVersion, v, prev, p)
		}
		seen[v] = p
		out = append(out, Migration{Version: v, Name: name, Path: p})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Runner 迁移执行器：FS 优先，其次读取目录 Dir
type Runner struct {
	FS     fs.FS
	Dir    string
	Logger *zap.Logger
}

func (r Runner) source() (fs.FS, error) {
	if r.FS != nil {
		return r.FS, nil
	}
	if r.Dir == "" {
		return nil, ErrNoSource
	}
	return os.DirFS(r.Dir), nil
}

// Up 在咨询锁内逐个事务执行未应用的迁移，返回本次应用的版本
func (r Runner) Up(ctx context.Context, db *pgxpool.Pool) ([]int64, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fsys, err := r.source()
	if err != nil {
		return nil, err
	}
	migrations, err := Discover(fsys)
	if err != nil {
		return nil, err
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire migration conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockKey); err != nil {
			logger.Warn("migration unlock failed", zap.Error(err))
		}
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+versionTable+` (
        version    BIGINT PRIMARY KEY,
        name       TEXT NOT NULL,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`); err != nil {
		return nil, fmt.Errorf("create %s: %w", versionTable, err)
	}
	rows, err := conn.Query(ctx, `SELECT version FROM `+versionTable)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	var done []int64
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		script, err := fs.ReadFile(fsys, m.Path)
		if err != nil {
			return done, err
		}
		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(script)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO `+versionTable+`(version, name) VALUES($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("migration %d %s: %w", m.Version, m.Name, err)
		}
		logger.Info("migration applied", zap.Int64("version", m.Version), zap.String("name", m.Name))
		done = append(done, m.Version)
	}
	return done, nil
}
