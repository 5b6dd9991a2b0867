package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"polybridge.com/internal/ledger/domain"
	"polybridge.com/internal/ledger/repo"
	"polybridge.com/pkg/logger"
	"polybridge.com/pkg/orm"
	"polybridge.com/pkg/xerr"
)

// Ledger 账本组件：余额的唯一写入口
// 任何余额变动必须走 CreateEntry，流水和余额在同一个事务里提交
type Ledger struct {
	repo  *repo.Repo
	cache Cache
	sf    singleflight.Group
	ttl   time.Duration
}

func New(r *repo.Repo, cache Cache) *Ledger {
	if cache == nil {
		cache = NewNoopCache()
	}
	return &Ledger{
		repo:  r,
		cache: cache,
		ttl:   2 * time.Hour,
	}
}

// EntryParams 建流水参数
type EntryParams struct {
	UserID       int64
	EntryType    string
	Amount       decimal.Decimal
	Currency     string
	Direction    string // credit / debit
	Metadata     map[string]interface{}
	DepositID    *int64
	WithdrawalID *int64
	TradeID      *int64
	SourceTxHash string
}

// CreateEntry 建账：读当前余额、算 balance_before/after、插流水、更新余额
// 四步在同一个事务里，要么全部提交要么全部回滚
// ctx 里已有事务时（桥接入账场景）直接并入外层事务
func (l *Ledger) CreateEntry(ctx context.Context, p EntryParams) (string, error) {
	if p.Direction != domain.DirectionCredit && p.Direction != domain.DirectionDebit {
		return "", xerr.New(xerr.RequestParamsError, "direction must be credit or debit")
	}
	if p.Amount.IsNegative() {
		return "", xerr.New(xerr.RequestParamsError, "amount must not be negative")
	}

	meta := "{}"
	if len(p.Metadata) > 0 {
		if b, err := json.Marshal(p.Metadata); err == nil {
			meta = string(b)
		}
	}

	entryID := uuid.NewString()
	err := l.repo.Transaction(ctx, func(txCtx context.Context) error {
		// 锁行读：并发建账时第二个事务等第一个提交后再拿余额，
		// 否则两条流水会写出同一个 balance_before
		bal, err := l.repo.GetBalanceForUpdate(txCtx, p.UserID, p.Currency)
		if err != nil {
			return err
		}

		before := bal.Available
		var after decimal.Decimal
		var delta decimal.Decimal
		if p.Direction == domain.DirectionCredit {
			after = before.Add(p.Amount)
			delta = p.Amount
		} else {
			after = before.Sub(p.Amount)
			delta = p.Amount.Neg()
		}

		e := &domain.Entry{
			ID:            entryID,
			UserID:        p.UserID,
			EntryType:     p.EntryType,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Direction:     p.Direction,
			Status:        domain.EntryPending,
			BalanceBefore: before,
			BalanceAfter:  after,
			DepositID:     p.DepositID,
			WithdrawalID:  p.WithdrawalID,
			TradeID:       p.TradeID,
			Metadata:      meta,
			SourceTxHash:  p.SourceTxHash,
			CreatedAt:     time.Now().UTC(),
		}
		if err := l.repo.CreateEntry(txCtx, e); err != nil {
			return err
		}

		return l.repo.AddBalance(txCtx, p.UserID, p.Currency, delta)
	})
	if err != nil {
		return "", err
	}

	// 余额变了，缓存作废。必须在事务提交之后删：提交前删的话，
	// 窗口期的读会把旧余额重新填进缓存，一直脏到 TTL 过期。
	// ctx 里带着外层事务时这里还没提交，失效交给事务的发起方
	// （见 bridge.Executor.Execute）在提交后做
	if !orm.InTransaction(ctx) {
		l.InvalidateBalance(ctx, p.UserID, p.Currency)
	}

	return entryID, nil
}

// InvalidateBalance 删余额缓存
// 只能在入账事务提交之后调用（删失败只影响短暂读旧值，不影响正确性）
func (l *Ledger) InvalidateBalance(ctx context.Context, userID int64, currency string) {
	if err := l.cache.DelBalance(ctx, userID, currency); err != nil {
		logger.Warn(ctx, "del balance cache failed", zap.Error(err))
	}
}

// UpdateEntryStatus 推进流水状态，只允许 pending -> completed / failed
// completed 记 completed_at（可带 destination_tx_hash），failed 记 failed_at + error_message
func (l *Ledger) UpdateEntryStatus(ctx context.Context, entryID, status, txHash, errMsg string) error {
	switch status {
	case domain.EntryCompleted:
		return l.repo.MarkEntryCompleted(ctx, entryID, txHash)
	case domain.EntryFailed:
		return l.repo.MarkEntryFailed(ctx, entryID, errMsg)
	default:
		return xerr.New(xerr.RequestParamsError, fmt.Sprintf("invalid target status: %s", status))
	}
}

// GetBalance 查余额：缓存 + singleflight 防击穿，miss 落库后回填
func (l *Ledger) GetBalance(ctx context.Context, userID int64, currency string) (*domain.Balance, error) {
	if b, ok, err := l.cache.GetBalance(ctx, userID, currency); err == nil && ok {
		return b, nil
	}

	key := fmt.Sprintf("%d:%s", userID, currency)
	v, err, _ := l.sf.Do(key, func() (interface{}, error) {
		b, err := l.repo.GetBalance(ctx, userID, currency)
		if err != nil {
			return nil, err
		}
		_ = l.cache.SetBalance(ctx, b, l.ttl)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Balance), nil
}

// Balances 用户全部币种余额（列表接口不走缓存，直接落库）
func (l *Ledger) Balances(ctx context.Context, userID int64) ([]*domain.Balance, error) {
	return l.repo.ListBalances(ctx, userID)
}

// EntriesByDeposit 一笔充值关联的全部流水（对账/恢复扫描用）
func (l *Ledger) EntriesByDeposit(ctx context.Context, depositID int64) ([]*domain.Entry, error) {
	return l.repo.ListByDeposit(ctx, depositID)
}

// HistoryPage 分页结果
type HistoryPage struct {
	Entries []*domain.Entry
	Total   int64
	HasMore bool
}

// History 流水查询：条件全部 AND，created_at 倒序，total 用同条件 count
func (l *Ledger) History(ctx context.Context, userID int64, f domain.HistoryFilter, limit, offset int) (*HistoryPage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := l.repo.ListEntries(ctx, userID, f, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := l.repo.CountEntries(ctx, userID, f)
	if err != nil {
		return nil, err
	}

	return &HistoryPage{
		Entries: entries,
		Total:   total,
		HasMore: total > int64(offset+limit),
	}, nil
}

// Transaction 把外部写操作并入账本事务（桥接入账用）
func (l *Ledger) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return l.repo.Transaction(ctx, fn)
}
