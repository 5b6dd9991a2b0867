package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"polybridge.com/internal/deposit/domain"
	"polybridge.com/pkg/orm"
	"polybridge.com/pkg/xerr"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ domain.Repository = (*Repo)(nil)

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.DB(ctx, r.db)
}

// Insert 幂等插入
// 核心：source_tx_hash 唯一索引 + DoNothing，并发重复通知只会有一条成功
// 不用 SELECT 再 INSERT 的读改写，冲突判定完全交给数据库
func (r *Repo) Insert(ctx context.Context, d *domain.Deposit) (bool, error) {
	res := r.getDb(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_tx_hash"}},
			DoNothing: true,
		}).
		Create(d)

	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("insert deposit failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*domain.Deposit, error) {
	var d domain.Deposit
	err := r.getDb(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "充值记录不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get deposit failed: %v", err))
	}
	return &d, nil
}

func (r *Repo) GetByHash(ctx context.Context, sourceTxHash string) (*domain.Deposit, error) {
	var d domain.Deposit
	err := r.getDb(ctx).Where("source_tx_hash = ?", sourceTxHash).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "充值记录不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get deposit failed: %v", err))
	}
	return &d, nil
}

// BumpConfirmations 确认数只增不减
// 条件更新：confirmations < ? 时才写，天然挡掉乱序/重放的旧值
func (r *Repo) BumpConfirmations(ctx context.Context, sourceTxHash string, confirmations int64) error {
	res := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("source_tx_hash = ? AND confirmations < ?", sourceTxHash, confirmations).
		Update("confirmations", confirmations)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("bump confirmations failed: %v", res.Error))
	}
	// RowsAffected == 0 说明新值不比旧值大，直接忽略
	return nil
}

// MarkConfirmed pending -> confirmed
// 同时要求确认数已达标，confirmed_at 在这里盖章
func (r *Repo) MarkConfirmed(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	res := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND status = ? AND confirmations >= required_confirmations",
			id, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":       domain.StatusConfirmed,
			"confirmed_at": now,
		})

	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("mark confirmed failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}

// MarkBridging confirmed -> bridging
// 抢到这次转移的调用方才能把任务塞给桥接 worker，别的并发调用拿到 false
func (r *Repo) MarkBridging(ctx context.Context, id int64) (bool, error) {
	res := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND status = ?", id, domain.StatusConfirmed).
		Update("status", domain.StatusBridging)

	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("mark bridging failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted bridging -> completed
// 入账事务里最先执行的就是这条 CAS，抢不到说明别的 worker 已经处理掉了
func (r *Repo) MarkCompleted(ctx context.Context, id int64, amountPlatform decimal.Decimal) (bool, error) {
	now := time.Now().UTC()
	res := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND status = ?", id, domain.StatusBridging).
		Updates(map[string]interface{}{
			"status":                   domain.StatusCompleted,
			"amount_platform_currency": amountPlatform,
			"completed_at":             now,
		})

	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("mark completed failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed bridging -> failed
func (r *Repo) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	res := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("id = ? AND status = ?", id, domain.StatusBridging).
		Updates(map[string]interface{}{
			"status":        domain.StatusFailed,
			"error_message": errMsg,
		})

	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("mark failed failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}

// ListBridging 卡在 bridging 超过 olderThan 的记录
// olderThan = 0 时取全部 bridging（进程重启后的重新入队）
func (r *Repo) ListBridging(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Deposit, error) {
	deposits := make([]*domain.Deposit, 0)
	db := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("status = ?", domain.StatusBridging)

	if olderThan > 0 {
		db = db.Where("updated_at < ?", time.Now().UTC().Add(-olderThan))
	}

	err := db.Order("id ASC").Limit(limit).Find(&deposits).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list bridging deposits failed: %v", err))
	}
	return deposits, nil
}

// ListStaleConfirmed 停在 confirmed 超过 olderThan 的记录
// 正常情况下 confirmed 会被立刻标成 bridging，停住说明调度写失败了
func (r *Repo) ListStaleConfirmed(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Deposit, error) {
	deposits := make([]*domain.Deposit, 0)
	err := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("status = ? AND updated_at < ?", domain.StatusConfirmed, time.Now().UTC().Add(-olderThan)).
		Order("id ASC").Limit(limit).
		Find(&deposits).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list stale confirmed deposits failed: %v", err))
	}
	return deposits, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.Deposit, error) {
	deposits := make([]*domain.Deposit, 0, limit)
	err := r.getDb(ctx).Model(&domain.Deposit{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&deposits).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list deposits failed: %v", err))
	}
	return deposits, nil
}
