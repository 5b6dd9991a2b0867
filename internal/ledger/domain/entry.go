package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 账本流水方向
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// 账本流水状态：只允许 pending -> completed / pending -> failed
const (
	EntryPending   = "pending"
	EntryCompleted = "completed"
	EntryFailed    = "failed"
)

// 流水类型
const (
	EntryTypeDeposit    = "deposit"
	EntryTypeWithdrawal = "withdrawal"
	EntryTypeTrade      = "trade"
)

// Entry 账本流水：每一笔影响余额的事件都有且只有一条记录
// completed 之后金额/方向不可变，只有状态类字段在 pending 期间可以推进
type Entry struct {
	ID            string          `gorm:"column:id;primaryKey;size:36"` // uuid
	UserID        int64           `gorm:"column:user_id;index:idx_user_created"`
	EntryType     string          `gorm:"column:entry_type;size:20;index"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(36,18)"`
	Currency      string          `gorm:"column:currency;size:16"`
	Direction     string          `gorm:"column:direction;size:8"`
	Status        string          `gorm:"column:status;size:16;index"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(36,18)"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:decimal(36,18)"`

	// 关联单据（入金/出金/成交只会有其中一个）
	DepositID    *int64 `gorm:"column:deposit_id;index"`
	WithdrawalID *int64 `gorm:"column:withdrawal_id"`
	TradeID      *int64 `gorm:"column:trade_id"`

	Metadata          string `gorm:"column:metadata;type:text"` // JSON 串
	SourceTxHash      string `gorm:"column:source_tx_hash;size:128"`
	DestinationTxHash string `gorm:"column:destination_tx_hash;size:128"`
	ErrorMsg          string `gorm:"column:error_message;size:512"`

	CreatedAt   time.Time  `gorm:"column:created_at;index:idx_user_created,sort:desc"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	FailedAt    *time.Time `gorm:"column:failed_at"`
}

func (Entry) TableName() string {
	return "ledger_entries"
}

// HistoryFilter 流水查询条件，全部是 AND 语义
type HistoryFilter struct {
	EntryType string
	Status    string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// EntryRepo 账本流水存储接口
type EntryRepo interface {
	// CreateEntry 插入一条流水（balance_before/after 已由调用方算好）
	CreateEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, id string) (*Entry, error)
	// MarkEntryCompleted pending -> completed，条件更新防止回退
	MarkEntryCompleted(ctx context.Context, id string, destTxHash string) error
	// MarkEntryFailed pending -> failed
	MarkEntryFailed(ctx context.Context, id string, errMsg string) error
	// ListByDeposit 取一笔充值关联的全部流水（对账用）
	ListByDeposit(ctx context.Context, depositID int64) ([]*Entry, error)
	// ListEntries 按条件分页查询，created_at 倒序
	ListEntries(ctx context.Context, userID int64, f HistoryFilter, limit, offset int) ([]*Entry, error)
	// CountEntries 与 ListEntries 同条件的总数
	CountEntries(ctx context.Context, userID int64, f HistoryFilter) (int64, error)
}
