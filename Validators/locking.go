package Validators

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RowLock adds FOR UPDATE to a query so competing writers for the same
// vehicle or driver serialize behind the current transaction. SQLite locks
// the whole database per write transaction, so the clause is skipped there.
func RowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
