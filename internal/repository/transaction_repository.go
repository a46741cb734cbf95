package repository

import (
	"context"
	"time"

	"inventory/internal/domain/model"
)

// 台帳一覧の絞り込み条件
type TransactionFilter struct {
	CompanyID int64
	ItemID    *int64
	Type      *model.TransactionType
	StartDate *time.Time
	EndDate   *time.Time
}

type TransactionRepository interface {
	Create(ctx context.Context, tx model.StockTransaction) (int64, error)

	// 会社スコープで1件取得
	FindByID(ctx context.Context, id int64, companyID int64) (model.StockTransaction, error)

	List(ctx context.Context, filter TransactionFilter) ([]model.StockTransaction, error)

	// 取り消しはソフトデリート。呼び出し側でItemのamount復元とセットにする。
	SoftDeleteByID(ctx context.Context, id int64) error
}
