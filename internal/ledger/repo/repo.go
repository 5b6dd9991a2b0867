package repo

import (
	"context"

	"gorm.io/gorm"
	"polybridge.com/internal/ledger/domain"
	"polybridge.com/pkg/orm"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

// 确保 Repo 实现了所有接口
var (
	_ domain.EntryRepo   = (*Repo)(nil)
	_ domain.BalanceRepo = (*Repo)(nil)
)

// Transaction 开启事务，tx 通过 context 传播到所有 repo 方法
func (r *Repo) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return orm.Transaction(ctx, r.db, fn)
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.DB(ctx, r.db)
}
