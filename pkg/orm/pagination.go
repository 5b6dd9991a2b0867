package orm

import "gorm.io/gorm"

// ApplyPagination 应用 limit/offset 分页
// limit <= 0 时不应用分页
func ApplyPagination(db *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	return db
}
