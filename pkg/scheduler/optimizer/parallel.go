package optimizer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// evaluate 并行评估候选移动，期间 sctx 只读
// 结果写回各自的 move，顺序与输入一致
func (o *LocalSearch) evaluate(ctx context.Context, sctx *constraint.Context, moves []*move) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.ParallelWorkers)
	for _, m := range moves {
		m := m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if ok, _ := o.manager.CanPlace(sctx, m.placement); !ok {
				return nil
			}
			m.feasible = true
			m.penalty = o.manager.Penalty(sctx, m.placement)
			return nil
		})
	}
	return g.Wait()
}
