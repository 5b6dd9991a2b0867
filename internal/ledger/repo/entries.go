package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"polybridge.com/internal/ledger/domain"
	"polybridge.com/pkg/orm"
	"polybridge.com/pkg/xerr"
)

// CreateEntry 插入流水记录
func (r *Repo) CreateEntry(ctx context.Context, e *domain.Entry) error {
	if err := r.getDb(ctx).Create(e).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create ledger entry failed: %v", err))
	}
	return nil
}

func (r *Repo) GetEntry(ctx context.Context, id string) (*domain.Entry, error) {
	var e domain.Entry
	err := r.getDb(ctx).Where("id = ?", id).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "流水不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get ledger entry failed: %v", err))
	}
	return &e, nil
}

// MarkEntryCompleted pending -> completed
// WHERE status = pending 保证状态不回退、completed 的流水不可再改
func (r *Repo) MarkEntryCompleted(ctx context.Context, id string, destTxHash string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       domain.EntryCompleted,
		"completed_at": now,
	}
	if destTxHash != "" {
		updates["destination_tx_hash"] = destTxHash
	}

	res := r.getDb(ctx).Model(&domain.Entry{}).
		Where("id = ? AND status = ?", id, domain.EntryPending).
		Updates(updates)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("complete ledger entry failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		// 状态不是 pending，说明已经被处理过了
		return fmt.Errorf("ledger entry %s is not pending", id)
	}
	return nil
}

// MarkEntryFailed pending -> failed
func (r *Repo) MarkEntryFailed(ctx context.Context, id string, errMsg string) error {
	now := time.Now().UTC()
	res := r.getDb(ctx).Model(&domain.Entry{}).
		Where("id = ? AND status = ?", id, domain.EntryPending).
		Updates(map[string]interface{}{
			"status":        domain.EntryFailed,
			"failed_at":     now,
			"error_message": errMsg,
		})

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("fail ledger entry failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ledger entry %s is not pending", id)
	}
	return nil
}

func (r *Repo) ListByDeposit(ctx context.Context, depositID int64) ([]*domain.Entry, error) {
	entries := make([]*domain.Entry, 0)
	err := r.getDb(ctx).Model(&domain.Entry{}).
		Where("deposit_id = ?", depositID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list entries by deposit failed: %v", err))
	}
	return entries, nil
}

func applyHistoryFilter(db *gorm.DB, userID int64, f domain.HistoryFilter) *gorm.DB {
	db = db.Where("user_id = ?", userID)
	if f.EntryType != "" {
		db = db.Where("entry_type = ?", f.EntryType)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.DateFrom != nil {
		db = db.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		db = db.Where("created_at <= ?", *f.DateTo)
	}
	return db
}

// ListEntries 按条件分页查询流水，created_at 倒序
func (r *Repo) ListEntries(ctx context.Context, userID int64, f domain.HistoryFilter, limit, offset int) ([]*domain.Entry, error) {
	entries := make([]*domain.Entry, 0, limit)
	db := applyHistoryFilter(r.getDb(ctx).Model(&domain.Entry{}), userID, f).
		Order("created_at DESC")

	if err := orm.ApplyPagination(db, limit, offset).Find(&entries).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list ledger entries failed: %v", err))
	}
	return entries, nil
}

// CountEntries 与 ListEntries 完全同条件的总数（分页 total 用）
func (r *Repo) CountEntries(ctx context.Context, userID int64, f domain.HistoryFilter) (int64, error) {
	var total int64
	db := applyHistoryFilter(r.getDb(ctx).Model(&domain.Entry{}), userID, f)
	if err := db.Count(&total).Error; err != nil {
		return 0, xerr.New(xerr.DbError, fmt.Sprintf("count ledger entries failed: %v", err))
	}
	return total, nil
}
