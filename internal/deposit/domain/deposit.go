package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Status uint8

// 充值状态机：pending -> confirmed -> bridging -> completed
// failed 只能从 bridging 进入，completed/failed 都是终态
// 首次通知确认数就够的话允许直接落在 confirmed（跳过 pending）
const (
	StatusPending Status = iota
	StatusConfirmed
	StatusBridging
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusBridging:
		return "bridging"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Deposit 充值记录
// source_tx_hash 全局唯一：同一笔链上交易的重复通知必须落到同一行
type Deposit struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	UserID       int64  `gorm:"column:user_id;index"`
	SourceTxHash string `gorm:"column:source_tx_hash;uniqueIndex;size:128"`
	SourceAddr   string `gorm:"column:source_address;size:128"`
	Chain        string `gorm:"column:chain;size:16"`

	AmountSource decimal.Decimal `gorm:"column:amount_source_asset;type:decimal(36,18)"`
	// confirmations 单调不减
	Confirmations         int64 `gorm:"column:confirmations"`
	RequiredConfirmations int64 `gorm:"column:required_confirmations"`

	Status Status `gorm:"column:status;index"`
	// 桥接完成前为空
	AmountPlatform decimal.NullDecimal `gorm:"column:amount_platform_currency;type:decimal(36,18)"`

	BlockNumber int64  `gorm:"column:block_number"`
	ErrorMsg    string `gorm:"column:error_message;size:512"`

	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (Deposit) TableName() string {
	return "deposits"
}

// Repository 充值记录存储接口
type Repository interface {
	// Insert 幂等插入：依赖 source_tx_hash 唯一索引 + ON CONFLICT DO NOTHING
	// 返回是否真的插进去了（false = 该 hash 已存在）
	Insert(ctx context.Context, d *Deposit) (bool, error)
	GetByID(ctx context.Context, id int64) (*Deposit, error)
	GetByHash(ctx context.Context, sourceTxHash string) (*Deposit, error)
	// BumpConfirmations 单调更新确认数（仅 new > old 时生效，条件更新不做读改写）
	BumpConfirmations(ctx context.Context, sourceTxHash string, confirmations int64) error
	// 下面四个都是 CAS 条件更新：WHERE status = 前置状态，返回是否抢到了这次转移
	MarkConfirmed(ctx context.Context, id int64) (bool, error)
	MarkBridging(ctx context.Context, id int64) (bool, error)
	MarkCompleted(ctx context.Context, id int64, amountPlatform decimal.Decimal) (bool, error)
	MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error)
	// ListBridging 取卡在 bridging 超过 olderThan 的记录（恢复扫描用）
	ListBridging(ctx context.Context, olderThan time.Duration, limit int) ([]*Deposit, error)
	// ListStaleConfirmed 取停在 confirmed 超过 olderThan 还没被调度走的记录
	ListStaleConfirmed(ctx context.Context, olderThan time.Duration, limit int) ([]*Deposit, error)
	// ListByUser 用户充值记录，created_at 倒序
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Deposit, error)
}
