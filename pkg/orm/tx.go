package orm

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transaction 开启事务并把 tx 注入 context，repo 层用 DB(ctx, db) 自动取到
// 如果 ctx 里已有事务则直接复用（嵌套调用合并为一个事务）
func Transaction(ctx context.Context, db *gorm.DB, fn func(txCtx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// DB 取当前事务句柄，没有事务时回退到普通连接
func DB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback.WithContext(ctx)
}

// InTransaction ctx 里是否已经带着事务
// 缓存失效这类"必须等提交之后"的动作要用它判断时机
func InTransaction(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok && tx != nil
}
