package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"polybridge.com/internal/ledger/domain"
	"polybridge.com/pkg/xerr"
)

// GetBalance 查余额
// 查无记录不是错误，返回零值余额（首充用户还没有 balances 行）
func (r *Repo) GetBalance(ctx context.Context, userID int64, currency string) (*domain.Balance, error) {
	var b domain.Balance
	err := r.getDb(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&b).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.Balance{
				UserID:    userID,
				Currency:  currency,
				Available: decimal.Zero,
			}, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get balance failed: %v", err))
	}
	return &b, nil
}

// GetBalanceForUpdate 查余额并锁行（FOR UPDATE），只能在事务里用
// 建账时两个 worker 同时读同一个余额会各自算出一样的 balance_before，
// 锁住行让第二个事务等第一个提交后再读，流水的 before/after 才接得上
func (r *Repo) GetBalanceForUpdate(ctx context.Context, userID int64, currency string) (*domain.Balance, error) {
	var b domain.Balance
	err := r.getDb(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&b).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.Balance{
				UserID:    userID,
				Currency:  currency,
				Available: decimal.Zero,
			}, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get balance for update failed: %v", err))
	}
	return &b, nil
}

// AddBalance 原子加钱（Upsert: 不存在则插入，存在则累加）
func (r *Repo) AddBalance(ctx context.Context, userID int64, currency string, amount decimal.Decimal) error {
	b := domain.Balance{
		UserID:    userID,
		Currency:  currency,
		Available: amount,
		UpdatedAt: time.Now().UTC(),
	}

	err := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"available":  gorm.Expr("available + ?", amount), // 余额累加
			"updated_at": b.UpdatedAt,
		}),
	}).Create(&b).Error

	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("add balance failed: %v", err))
	}
	return nil
}

// ListBalances 用户全部币种余额
func (r *Repo) ListBalances(ctx context.Context, userID int64) ([]*domain.Balance, error) {
	var out []*domain.Balance
	err := r.getDb(ctx).
		Where("user_id = ?", userID).
		Order("currency ASC").
		Find(&out).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list balances failed: %v", err))
	}
	return out, nil
}
