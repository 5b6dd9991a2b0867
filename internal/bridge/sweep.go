package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"
	ledgerdomain "polybridge.com/internal/ledger/domain"
	"polybridge.com/pkg/logger"
	"polybridge.com/pkg/metrics"
)

// requeueAll 进程启动时把库里所有 bridging 记录重新入队
// 队列是内存的，崩溃会丢；行状态是持久的，所以从表里重建
func (e *Executor) requeueAll(ctx context.Context) {
	deps, err := e.deposits.ListBridging(ctx, 0, 1000)
	if err != nil {
		logger.Error(ctx, "requeue bridging deposits failed", zap.Error(err))
		return
	}
	for _, d := range deps {
		e.Enqueue(d.ID)
	}
	if len(deps) > 0 {
		logger.Info(ctx, "requeued in-flight deposits", zap.Int("count", len(deps)))
	}
}

// runSweep 恢复扫描：周期性捞出停滞的记录，保证没有充值会被无声卡死
func (e *Executor) runSweep(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepOnce(ctx)
		}
	}
}

// sweepOnce 单轮扫描
//
// bridging 超时：崩溃在「入队之后、入账之前」的记录。上一次尝试
// 留下的 pending 流水先标 failed（那次事务根本没提交到入账那步，
// 或者提交前就挂了），然后重新入队执行。重复入账不用担心：
// Execute 里的 CAS 只会放一次通过
//
// confirmed 超时：调度时 MarkBridging 写失败留下的，补一次调度
func (e *Executor) sweepOnce(ctx context.Context) {
	stuck, err := e.deposits.ListBridging(ctx, e.cfg.GracePeriod, 100)
	if err != nil {
		logger.Error(ctx, "sweep list bridging failed", zap.Error(err))
		return
	}

	for _, d := range stuck {
		entries, err := e.ledger.EntriesByDeposit(ctx, d.ID)
		if err != nil {
			logger.Error(ctx, "sweep list entries failed",
				zap.Int64("deposit_id", d.ID), zap.Error(err))
			continue
		}

		resume := true
		for _, en := range entries {
			switch en.Status {
			case ledgerdomain.EntryCompleted:
				// 入账流水已 completed 但 deposit 还在 bridging：
				// 入账和状态写在同一个事务里，正常不可能出现，
				// 出现了说明数据被人动过，绝不能再入一次账
				logger.Error(ctx, "bridging deposit has completed entry, manual check required",
					zap.Int64("deposit_id", d.ID), zap.String("entry_id", en.ID))
				resume = false
			case ledgerdomain.EntryPending:
				// 上次尝试的残留，标 failed 后由新的入账流水接替
				if err := e.ledger.UpdateEntryStatus(ctx, en.ID,
					ledgerdomain.EntryFailed, "", "superseded by reconciliation"); err != nil {
					logger.Warn(ctx, "sweep supersede entry failed",
						zap.String("entry_id", en.ID), zap.Error(err))
				}
			}
		}

		if resume {
			metrics.BridgeRequeuedTotal.Inc()
			logger.Warn(ctx, "requeueing stuck deposit",
				zap.Int64("deposit_id", d.ID),
				zap.Time("updated_at", d.UpdatedAt))
			e.Enqueue(d.ID)
		}
	}

	// 调度写失败留下的 confirmed 记录
	confirmed, err := e.deposits.ListStaleConfirmed(ctx, e.cfg.GracePeriod, 100)
	if err != nil {
		logger.Error(ctx, "sweep list stale confirmed failed", zap.Error(err))
		return
	}
	for _, d := range confirmed {
		acquired, err := e.deposits.MarkBridging(ctx, d.ID)
		if err != nil {
			logger.Error(ctx, "sweep mark bridging failed",
				zap.Int64("deposit_id", d.ID), zap.Error(err))
			continue
		}
		if acquired {
			metrics.BridgeRequeuedTotal.Inc()
			e.Enqueue(d.ID)
		}
	}
}
