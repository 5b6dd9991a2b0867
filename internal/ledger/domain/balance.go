package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Balance 用户当前余额，(user_id, currency) 唯一
// 只能通过账本事务修改，任何组件不得直接 UPDATE 这张表
type Balance struct {
	UserID    int64           `gorm:"column:user_id;primaryKey"`
	Currency  string          `gorm:"column:currency;primaryKey;size:16"`
	Available decimal.Decimal `gorm:"column:available;type:decimal(36,18);default:0"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (Balance) TableName() string {
	return "balances"
}

// BalanceRepo 余额存储接口
type BalanceRepo interface {
	// GetBalance 查不到时返回零值余额，不报错
	GetBalance(ctx context.Context, userID int64, currency string) (*Balance, error)
	// GetBalanceForUpdate 同上，但带 FOR UPDATE 行锁，建账事务内专用
	GetBalanceForUpdate(ctx context.Context, userID int64, currency string) (*Balance, error)
	// AddBalance 原子加钱（Upsert，available = available + amount）
	// amount 可以为负（debit 场景）
	AddBalance(ctx context.Context, userID int64, currency string, amount decimal.Decimal) error
	// ListBalances 用户全部币种余额
	ListBalances(ctx context.Context, userID int64) ([]*Balance, error)
}
