// 课表编排与代课服务
// 主程序入口

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kebiao/kebiao/internal/config"
	"github.com/kebiao/kebiao/internal/database"
	"github.com/kebiao/kebiao/internal/events"
	"github.com/kebiao/kebiao/internal/handler"
	"github.com/kebiao/kebiao/internal/lock"
	"github.com/kebiao/kebiao/internal/metrics"
	"github.com/kebiao/kebiao/internal/middleware"
	"github.com/kebiao/kebiao/internal/repository"
	"github.com/kebiao/kebiao/internal/service"
	"github.com/kebiao/kebiao/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	format := "json"
	if cfg.IsDevelopment() {
		format = "console"
	}
	logger.Init(logger.Config{Level: cfg.App.LogLevel, Format: format})

	fmt.Printf("课表引擎 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	ctx := context.Background()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.App.StorageDriver).Msg("初始化存储失败")
	}
	defer closeRepo()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.App.LockDriver).Msg("初始化排课锁失败")
	}
	defer closeLocker()

	publisher, err := openPublisher(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.App.EventDriver).Msg("初始化事件发布失败")
	}
	defer publisher.Close()

	m := metrics.Default()
	opts := service.OptionsFromConfig(cfg.Engine)
	h, err := handler.New(
		service.NewTimetable(repo, locker, publisher, m, opts),
		service.NewCoverage(repo, publisher, m, opts),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化处理器失败")
	}

	// 中间件执行顺序：requestID -> actor -> recovery -> rateLimit -> cors -> logging -> handler
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Actor)
	r.Use(middleware.Recovery)
	r.Use(middleware.RateLimit(middleware.NewRateLimiter(float64(cfg.API.RateLimit))))
	if cfg.API.CORS.Enabled {
		r.Use(middleware.CORS(cfg.API.CORS.Origins))
	}
	r.Use(middleware.Logging(m))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		pctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repo.Ping(pctx); err != nil {
			logger.WithContext(r.Context()).Warn().Err(err).Msg("健康检查失败")
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": cfg.App.Name,
			"storage": cfg.App.StorageDriver,
		})
	})

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, m.Handler())
	}

	r.Route("/api/v1", h.Routes)

	// 生成课表可能接近引擎超时，写超时留出余量
	writeTimeout := cfg.API.Timeout
	if cfg.Engine.GenerateTimeout+10*time.Second > writeTimeout {
		writeTimeout = cfg.Engine.GenerateTimeout + 10*time.Second
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      r,
		ReadTimeout:  cfg.API.Timeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Str("storage", cfg.App.StorageDriver).
			Str("lock", cfg.App.LockDriver).
			Str("events", cfg.App.EventDriver).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		return
	}

	logger.Info().Msg("服务器已关闭")
}

// openRepository 按配置选择存储，postgres 启动时执行迁移
func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, func(), error) {
	if cfg.App.StorageDriver == "memory" {
		logger.Warn().Msg("使用内存存储，重启后数据丢失")
		return repository.NewMemory(), func() {}, nil
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewPostgres(db)
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repo.Migrate(mctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return repo, func() { db.Close() }, nil
}

// openLocker 单实例用进程内锁，多实例部署用 Redis
func openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.App.LockDriver != "redis" {
		return lock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	return lock.NewRedis(client, cfg.Engine.LockTTL), func() { client.Close() }, nil
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.App.EventDriver != "amqp" {
		return events.Noop{}, nil
	}
	return events.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.PublishTimeout)
}
