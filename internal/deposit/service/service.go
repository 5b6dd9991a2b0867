package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"polybridge.com/internal/deposit/domain"
	"polybridge.com/internal/wallet"
	"polybridge.com/pkg/logger"
	"polybridge.com/pkg/xerr"
)

// Scheduler 桥接任务入队接口（由 bridge.Executor 实现）
// ingest 只负责把 deposit 推进到 bridging 并交出去，绝不同步等兑换结果
type Scheduler interface {
	Enqueue(depositID int64)
}

// Config 充值入口配置
type Config struct {
	Chain                 string // 来源链，例如 TON
	RequiredConfirmations int64
}

// Service 充值入口：外部探测器/轮询器上报充值的幂等落库
type Service struct {
	repo      domain.Repository
	wallets   wallet.Resolver
	scheduler Scheduler
	cfg       Config
}

func New(repo domain.Repository, wallets wallet.Resolver, scheduler Scheduler, cfg Config) *Service {
	if cfg.RequiredConfirmations <= 0 {
		cfg.RequiredConfirmations = 1
	}
	return &Service{
		repo:      repo,
		wallets:   wallets,
		scheduler: scheduler,
		cfg:       cfg,
	}
}

// Notification 外部观察者上报的充值通知
type Notification struct {
	SourceTxHash  string
	SourceAddress string
	Amount        decimal.Decimal
	Confirmations int64
	BlockNumber   int64
}

// Result 上报结果
// AlreadyRecorded = true 表示这是重复通知，返回的是已有记录的当前状态
type Result struct {
	DepositID       int64
	Status          domain.Status
	AlreadyRecorded bool
}

// Submit 充值上报
// 幂等：同一个 source_tx_hash 永远只有一行，重复上报只会单调推高确认数
// 首次达到确认数（无论首报还是补报）会把记录推进到 bridging 并调度兑换，
// 但本方法立即返回，不等兑换结果
func (s *Service) Submit(ctx context.Context, n Notification) (*Result, error) {
	if n.SourceTxHash == "" || n.SourceAddress == "" {
		return nil, xerr.New(xerr.RequestParamsError, "source_tx_hash and source_address are required")
	}
	if n.Amount.IsZero() || n.Amount.IsNegative() {
		return nil, xerr.New(xerr.RequestParamsError, "amount_source_asset must be positive")
	}
	if n.Confirmations < 0 {
		return nil, xerr.New(xerr.RequestParamsError, "confirmations must not be negative")
	}

	userID, err := s.wallets.ResolveUser(ctx, n.SourceAddress)
	if err != nil {
		return nil, err
	}

	status := domain.StatusPending
	var confirmedAt *time.Time
	if n.Confirmations >= s.cfg.RequiredConfirmations {
		// 首次通知确认数就够：直接落 confirmed，pending 被跳过且以后不会再出现
		status = domain.StatusConfirmed
		now := time.Now().UTC()
		confirmedAt = &now
	}

	d := &domain.Deposit{
		UserID:                userID,
		SourceTxHash:          n.SourceTxHash,
		SourceAddr:            n.SourceAddress,
		Chain:                 s.cfg.Chain,
		AmountSource:          n.Amount,
		Confirmations:         n.Confirmations,
		RequiredConfirmations: s.cfg.RequiredConfirmations,
		Status:                status,
		BlockNumber:           n.BlockNumber,
		ConfirmedAt:           confirmedAt,
	}

	created, err := s.repo.Insert(ctx, d)
	if err != nil {
		return nil, err
	}

	if !created {
		return s.resubmit(ctx, n)
	}

	logger.Info(ctx, "deposit recorded",
		zap.Int64("deposit_id", d.ID),
		zap.Int64("user_id", userID),
		zap.String("tx", n.SourceTxHash),
		zap.String("amount", n.Amount.String()),
		zap.String("status", status.String()),
	)

	if status == domain.StatusConfirmed {
		s.schedule(ctx, d.ID)
	}

	return &Result{DepositID: d.ID, Status: status}, nil
}

// resubmit 重复通知：推高确认数，可能触发 pending -> confirmed 晋升
// 绝不重复触发桥接（晋升 CAS 只会成功一次）
func (s *Service) resubmit(ctx context.Context, n Notification) (*Result, error) {
	if err := s.repo.BumpConfirmations(ctx, n.SourceTxHash, n.Confirmations); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByHash(ctx, n.SourceTxHash)
	if err != nil {
		return nil, err
	}

	if existing.Status == domain.StatusPending &&
		existing.Confirmations >= existing.RequiredConfirmations {
		promoted, err := s.repo.MarkConfirmed(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		if promoted {
			existing.Status = domain.StatusConfirmed
			s.schedule(ctx, existing.ID)
		}
	}

	return &Result{
		DepositID:       existing.ID,
		Status:          existing.Status,
		AlreadyRecorded: true,
	}, nil
}

// schedule confirmed -> bridging 并入队
// 先同步把行标成 bridging，保证没有第二个调度方会再抢到它
func (s *Service) schedule(ctx context.Context, depositID int64) {
	acquired, err := s.repo.MarkBridging(ctx, depositID)
	if err != nil {
		// 标失败不影响上报结果：行还停在 confirmed，恢复扫描会补（见 bridge.Sweep）
		logger.Error(ctx, "mark bridging failed", zap.Int64("deposit_id", depositID), zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	if s.scheduler != nil {
		s.scheduler.Enqueue(depositID)
	}
}

// Get 按交易哈希查本人的充值记录
func (s *Service) Get(ctx context.Context, userID int64, sourceTxHash string) (*domain.Deposit, error) {
	d, err := s.repo.GetByHash(ctx, sourceTxHash)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, xerr.New(xerr.RecordNotFound, "充值记录不存在")
	}
	return d, nil
}

// List 本人充值记录列表
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]*domain.Deposit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
