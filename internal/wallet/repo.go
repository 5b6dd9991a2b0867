package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"polybridge.com/pkg/orm"
	"polybridge.com/pkg/xerr"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ Resolver = (*Repo)(nil)

// ResolveUser 地址找用户
func (r *Repo) ResolveUser(ctx context.Context, depositAddress string) (int64, error) {
	var w CustodyWallet
	err := orm.DB(ctx, r.db).
		Where("deposit_address = ?", depositAddress).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, xerr.New(xerr.RecordNotFound, "该地址没有绑定用户")
		}
		return 0, xerr.New(xerr.DbError, fmt.Sprintf("resolve user failed: %v", err))
	}
	return w.UserID, nil
}

// Bind 绑定托管地址，(user_id, chain) 重复绑定视为错误
func (r *Repo) Bind(ctx context.Context, userID int64, chain, depositAddress string) (*CustodyWallet, error) {
	w := &CustodyWallet{
		UserID:         userID,
		Chain:          chain,
		DepositAddress: depositAddress,
		CreatedAt:      time.Now().UTC(),
	}
	if err := orm.DB(ctx, r.db).Create(w).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("bind custody wallet failed: %v", err))
	}
	return w, nil
}
