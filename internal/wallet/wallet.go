package wallet

import (
	"context"
	"time"
)

// CustodyWallet 托管充值地址，一个地址绑定且只绑定一个用户
// 每个 (user_id, chain) 只建一次，建好之后不可变
type CustodyWallet struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	UserID         int64     `gorm:"column:user_id;uniqueIndex:idx_user_chain"`
	Chain          string    `gorm:"column:chain;size:16;uniqueIndex:idx_user_chain"`
	DepositAddress string    `gorm:"column:deposit_address;uniqueIndex;size:128"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (CustodyWallet) TableName() string {
	return "custody_wallets"
}

// Resolver 地址 -> 用户 查找接口（充值入口的协作方）
type Resolver interface {
	ResolveUser(ctx context.Context, depositAddress string) (int64, error)
}
