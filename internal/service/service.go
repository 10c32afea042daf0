// Package service 编排存储、引擎、锁和事件
package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kebiao/kebiao/internal/config"
	"github.com/kebiao/kebiao/internal/events"
	"github.com/kebiao/kebiao/internal/metrics"
	"github.com/kebiao/kebiao/internal/repository"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
)

// Options 服务参数
type Options struct {
	RepositoryTimeout time.Duration
	GenerateTimeout   time.Duration
	BacktrackFactor   int
	EmitBreaks        bool
	HorizonDays       int
	TopK              int
	OptimizeMoves     int
	OptimizeWorkers   int
}

// OptionsFromConfig 从引擎配置生成参数
func OptionsFromConfig(c config.EngineConfig) Options {
	return Options{
		RepositoryTimeout: c.RepositoryTimeout,
		GenerateTimeout:   c.GenerateTimeout,
		BacktrackFactor:   c.BacktrackFactor,
		EmitBreaks:        c.EmitBreaks,
		HorizonDays:       c.HorizonDays,
		TopK:              c.TopK,
		OptimizeMoves:     c.OptimizeMoves,
		OptimizeWorkers:   c.OptimizeWorkers,
	}
}

func (o Options) withDefaults() Options {
	if o.RepositoryTimeout <= 0 {
		o.RepositoryTimeout = 5 * time.Second
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 30 * time.Second
	}
	return o
}

// base 两个服务共用的依赖
type base struct {
	repo      repository.Repository
	publisher events.Publisher
	metrics   *metrics.Collectors
	opts      Options
	now       func() time.Time
}

func newBase(repo repository.Repository, pub events.Publisher, m *metrics.Collectors, opts Options) base {
	if pub == nil {
		pub = events.Noop{}
	}
	if m == nil {
		m = metrics.Default()
	}
	return base{
		repo:      repo,
		publisher: pub,
		metrics:   m,
		opts:      opts.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// call 在存储超时内执行一次存储操作，非业务错误统一视为存储不可用
func (b *base) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.RepositoryTimeout)
	defer cancel()
	return repoError(fn(ctx), op)
}

func repoError(err error, op string) error {
	if err == nil {
		return nil
	}
	if apperrors.GetCode(err) != apperrors.CodeUnknown {
		return err
	}
	return apperrors.RepositoryUnavailable(err, op)
}

// publish 事件发布失败只记录日志，不影响已提交的数据
func (b *base) publish(ctx context.Context, typ string, payload interface{}) {
	e := events.New(typ, actorOf(ctx), payload)
	if err := b.publisher.Publish(ctx, e); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("event", typ).Msg("事件发布失败")
	}
}

func actorOf(ctx context.Context) string {
	actor, _ := ctx.Value(logger.ActorKey).(string)
	return actor
}

// catalogSnapshot 并行读取基础数据
type catalogSnapshot struct {
	batches  []*model.Batch
	subjects []*model.Subject
	faculty  []*model.Faculty
	rooms    []*model.Room
}

func (b *base) loadCatalog(ctx context.Context) (*catalogSnapshot, error) {
	var snap catalogSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.call(gctx, "list batches", func(ctx context.Context) (err error) {
			snap.batches, err = b.repo.ListBatches(ctx)
			return err
		})
	})
	g.Go(func() error {
		return b.call(gctx, "list subjects", func(ctx context.Context) (err error) {
			snap.subjects, err = b.repo.ListSubjects(ctx)
			return err
		})
	})
	g.Go(func() error {
		return b.call(gctx, "list faculty", func(ctx context.Context) (err error) {
			snap.faculty, err = b.repo.ListFaculty(ctx)
			return err
		})
	})
	g.Go(func() error {
		return b.call(gctx, "list rooms", func(ctx context.Context) (err error) {
			snap.rooms, err = b.repo.ListRooms(ctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}
