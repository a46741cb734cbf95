package repository

import (
	"context"
	"errors"

	"inventory/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

type ItemRepository interface {
	// 会社スコープで1件取得
	FindByID(ctx context.Context, itemID int64, companyID int64) (model.Item, error)

	// 名前で1件取得（重複チェック用）
	FindByName(ctx context.Context, name string, companyID int64) (model.Item, error)

	// 会社の品目一覧
	ListByCompanyID(ctx context.Context, companyID int64) ([]model.Item, error)

	Create(ctx context.Context, item model.Item) (int64, error)

	// 在庫が足りるときだけ減算
	DecreaseAmountIfEnough(ctx context.Context, itemID int64, companyID int64, qty int64) (bool, error)

	// 在庫戻し（取り消し・入庫）
	IncreaseAmount(ctx context.Context, itemID int64, companyID int64, qty int64) error
}
