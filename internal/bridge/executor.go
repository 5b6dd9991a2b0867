package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"polybridge.com/internal/deposit/domain"
	ledgerdomain "polybridge.com/internal/ledger/domain"
	ledger "polybridge.com/internal/ledger/service"
	"polybridge.com/internal/rate"
	"polybridge.com/pkg/logger"
	"polybridge.com/pkg/metrics"
	"polybridge.com/pkg/orm"
	"polybridge.com/pkg/safe"
)

// errAlreadyHandled 入账事务里 CAS 没抢到：别的 worker 已经处理掉了
// 返回它让整个事务回滚，对外视为无事发生
var errAlreadyHandled = errors.New("deposit already handled")

// Config 桥接 worker 配置
type Config struct {
	Workers          int
	QueueSize        int
	PlatformCurrency string        // 兑换目标币种，例如 USDC
	SourceAsset      string        // 来源资产，例如 TON
	GracePeriod      time.Duration // 超过这个时间还停在 bridging 的记录交给恢复扫描
	SweepInterval    time.Duration
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 2 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Executor 桥接执行器：在请求路径之外消费 bridging 状态的充值，
// 把来源资产按汇率兑换成平台币并原子入账
//
// 去重令牌就是 deposit 自己的 status 字段（轻量 saga）：
// 任何一次执行都先 CAS bridging -> completed，抢不到就放弃，
// 所以崩溃后的重试天然安全，不需要独立的锁
type Executor struct {
	db       *gorm.DB
	deposits domain.Repository
	ledger   *ledger.Ledger
	rates    rate.Source
	cfg      Config

	queue chan int64
}

func NewExecutor(db *gorm.DB, deposits domain.Repository, l *ledger.Ledger, rates rate.Source, cfg Config) *Executor {
	cfg.withDefaults()
	return &Executor{
		db:       db,
		deposits: deposits,
		ledger:   l,
		rates:    rates,
		cfg:      cfg,
		queue:    make(chan int64, cfg.QueueSize),
	}
}

// Start 启动 worker 池和恢复扫描
// 启动时先把库里所有 bridging 的记录重新入队：队列只是唤醒信号，
// 数据库里的行才是持久化的工作记录，重启不丢任务
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.cfg.Workers; i++ {
		safe.GoCtx(ctx, e.runWorker)
	}
	safe.GoCtx(ctx, func(ctx context.Context) {
		e.requeueAll(ctx)
		e.runSweep(ctx)
	})
}

// Enqueue 入队（非阻塞）
// 队列满了直接丢：行还停在 bridging，恢复扫描一定会捞回来
func (e *Executor) Enqueue(depositID int64) {
	select {
	case e.queue <- depositID:
		metrics.BridgeQueueDepth.Set(float64(len(e.queue)))
	default:
		metrics.BridgeDroppedTotal.Inc()
	}
}

func (e *Executor) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.queue:
			metrics.BridgeQueueDepth.Set(float64(len(e.queue)))
			start := time.Now()
			if err := e.Execute(ctx, id); err != nil {
				logger.Error(ctx, "bridge execute failed",
					zap.Int64("deposit_id", id), zap.Error(err))
			}
			metrics.BridgeDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// Execute 处理一笔 bridging 状态的充值，幂等可重试
//
//  1. 重新读记录，status != bridging 直接返回（已被处理）
//  2. 取汇率，算平台币金额
//  3. 一个事务里：CAS deposit bridging->completed、建账本流水、
//     流水置 completed、余额累加 —— 要么全部提交要么全部回滚
//  4. 2-3 任何失败：CAS bridging->failed 记 error_message，余额零变动
func (e *Executor) Execute(ctx context.Context, depositID int64) error {
	dep, err := e.deposits.GetByID(ctx, depositID)
	if err != nil {
		return err
	}
	if dep.Status != domain.StatusBridging {
		return nil
	}

	r, err := e.rates.GetRate(ctx, e.cfg.SourceAsset, e.cfg.PlatformCurrency)
	if err != nil {
		e.fail(ctx, dep.ID, fmt.Sprintf("rate unavailable: %v", err), "rate")
		return nil
	}

	amount := dep.AmountSource.Mul(r)

	err = orm.Transaction(ctx, e.db, func(txCtx context.Context) error {
		// CAS 在入账写之前、同一个事务之内：这是唯一的防重入账闸门
		acquired, err := e.deposits.MarkCompleted(txCtx, dep.ID, amount)
		if err != nil {
			return err
		}
		if !acquired {
			return errAlreadyHandled
		}

		entryID, err := e.ledger.CreateEntry(txCtx, ledger.EntryParams{
			UserID:       dep.UserID,
			EntryType:    ledgerdomain.EntryTypeDeposit,
			Amount:       amount,
			Currency:     e.cfg.PlatformCurrency,
			Direction:    ledgerdomain.DirectionCredit,
			DepositID:    &dep.ID,
			SourceTxHash: dep.SourceTxHash,
			Metadata: map[string]interface{}{
				"source_asset":  e.cfg.SourceAsset,
				"amount_source": dep.AmountSource.String(),
				"rate":          r.String(),
			},
		})
		if err != nil {
			return err
		}

		return e.ledger.UpdateEntryStatus(txCtx, entryID, ledgerdomain.EntryCompleted, "", "")
	})

	if errors.Is(err, errAlreadyHandled) {
		return nil
	}
	if err != nil {
		e.fail(ctx, dep.ID, fmt.Sprintf("credit failed: %v", err), "credit")
		return err
	}

	// 事务已提交，这时候才能让缓存失效（提交前删会被窗口期的读回填旧值）
	e.ledger.InvalidateBalance(ctx, dep.UserID, e.cfg.PlatformCurrency)

	metrics.BridgeCreditedTotal.Inc()
	logger.Info(ctx, "deposit bridged",
		zap.Int64("deposit_id", dep.ID),
		zap.Int64("user_id", dep.UserID),
		zap.String("amount_source", dep.AmountSource.String()),
		zap.String("amount_platform", amount.String()),
		zap.String("rate", r.String()),
	)
	return nil
}

// fail bridging -> failed
// 入账事务已整体回滚，这里只记终态，余额没有任何变化
func (e *Executor) fail(ctx context.Context, depositID int64, msg, reason string) {
	marked, err := e.deposits.MarkFailed(ctx, depositID, msg)
	if err != nil {
		// 标失败也失败：行留在 bridging，恢复扫描会再试
		logger.Error(ctx, "mark deposit failed error",
			zap.Int64("deposit_id", depositID), zap.Error(err))
		return
	}
	if marked {
		metrics.BridgeFailedTotal.WithLabelValues(reason).Inc()
		logger.Warn(ctx, "deposit bridge failed",
			zap.Int64("deposit_id", depositID), zap.String("error", msg))
	}
}
