// Package database PostgreSQL 连接池与事务
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kebiao/kebiao/internal/config"
	"github.com/kebiao/kebiao/pkg/logger"
)

const (
	defaultSlowQuery = 100 * time.Millisecond
	maxLoggedQuery   = 200
)

// DB sqlx 连接池，查询超过 slow 记一条警告
type DB struct {
	*sqlx.DB
	slow time.Duration
}

// New 按配置建立连接池并确认数据库可达
func New(cfg *config.DatabaseConfig) (*DB, error) {
	conn, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := Wrap(conn, cfg.SlowQuery)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Health(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("数据库不可达 %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Name).Msg("数据库已连接")
	return db, nil
}

// Wrap 包装已有连接，sqlmock 测试用
func Wrap(conn *sqlx.DB, slow time.Duration) *DB {
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	return &DB{DB: conn, slow: slow}
}

// Close 可重复调用
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Health 连接是否可用
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Transaction fn 返回错误或 panic 时回滚，否则提交
func (db *DB) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err != nil {
			err = fmt.Errorf("%w (回滚失败: %v)", err, rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("事务提交失败: %w", err)
	}
	committed = true
	return nil
}

func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	defer db.observe(query, time.Now())
	return db.DB.SelectContext(ctx, dest, query, args...)
}

func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	defer db.observe(query, time.Now())
	return db.DB.GetContext(ctx, dest, query, args...)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	defer db.observe(query, time.Now())
	return db.DB.ExecContext(ctx, query, args...)
}

func (db *DB) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	defer db.observe(query, time.Now())
	return db.DB.NamedExecContext(ctx, query, arg)
}

func (db *DB) observe(query string, start time.Time) {
	if took := time.Since(start); took > db.slow {
		logger.Warn().Str("query", shorten(query)).Dur("duration", took).Msg("慢SQL查询")
	}
}

func shorten(query string) string {
	if len(query) <= maxLoggedQuery {
		return query
	}
	return query[:maxLoggedQuery] + "..."
}
