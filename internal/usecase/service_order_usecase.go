package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"
)

// サービスオーダー処理の業務エラー。sagaを中断してロールバックさせるが、
// リトライはしない（失敗応答で呼び出し元へ返す）。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

type ServiceOrderItem struct {
	ItemID int64 `json:"item_id"`
	Amount int64 `json:"amount"`
}

// ワークキューで届くサービスオーダー
type ServiceOrderRequest struct {
	ClientID     int64              `json:"client_id"`
	CompanyID    int64              `json:"company_id"`
	TechnicianID int64              `json:"technician_id"`
	Items        []ServiceOrderItem `json:"items"`

	//取り消す過去トランザクションのID（任意）
	TransactionIDs []int64 `json:"transaction_ids,omitempty"`
}

// 在庫台帳のsaga。検証 → 過去分の取り消し → 新規適用 を
// 1つのDBトランザクションで実行し、途中で失敗したら全て巻き戻す。
type ServiceOrderUsecase struct {
	tx repo.TransactionManager
}

func NewServiceOrderUsecase(tx repo.TransactionManager) *ServiceOrderUsecase {
	return &ServiceOrderUsecase{tx: tx}
}

// Execute は成功時に新規トランザクションIDをリクエストのitems順で返す。
func (u *ServiceOrderUsecase) Execute(ctx context.Context, req ServiceOrderRequest) ([]int64, error) {
	if req.CompanyID <= 0 {
		return nil, &ValidationError{Reason: "invalid company_id"}
	}
	if len(req.Items) == 0 {
		return nil, &ValidationError{Reason: "no items in service order"}
	}
	for _, it := range req.Items {
		if it.ItemID <= 0 || it.Amount <= 0 {
			return nil, &ValidationError{Reason: "invalid item entry"}
		}
	}

	var ids []int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//まず全件を検証する。1件でも駄目なら何も書かずに中断。
		for _, it := range req.Items {
			item, err := r.Items().FindByID(ctx, it.ItemID, req.CompanyID)
			if errors.Is(err, repo.ErrNotFound) {
				return &ValidationError{Reason: fmt.Sprintf("item %d not found", it.ItemID)}
			}
			if err != nil {
				return err
			}
			if item.Amount < it.Amount {
				return &ValidationError{Reason: fmt.Sprintf("insufficient stock for item %d", it.ItemID)}
			}
		}

		//過去トランザクションの取り消し。削除とamount復元は必ずセット。
		for _, txID := range req.TransactionIDs {
			prev, err := r.Transactions().FindByID(ctx, txID, req.CompanyID)
			if errors.Is(err, repo.ErrNotFound) {
				return &ValidationError{Reason: fmt.Sprintf("transaction %d not found", txID)}
			}
			if err != nil {
				return err
			}

			if err := r.Transactions().SoftDeleteByID(ctx, txID); err != nil {
				return err
			}
			if err := r.Items().IncreaseAmount(ctx, prev.ItemID, req.CompanyID, prev.Amount); err != nil {
				return err
			}
		}

		//新規適用。在庫を引いて出庫トランザクションを記録する。
		ids = make([]int64, 0, len(req.Items))
		now := time.Now()

		for _, it := range req.Items {
			item, err := r.Items().FindByID(ctx, it.ItemID, req.CompanyID)
			if err != nil {
				return err
			}

			ok, err := r.Items().DecreaseAmountIfEnough(ctx, it.ItemID, req.CompanyID, it.Amount)
			if err != nil {
				return err
			}
			if !ok {
				return &ValidationError{Reason: fmt.Sprintf("insufficient stock for item %d", it.ItemID)}
			}

			tx := model.StockTransaction{
				ItemID:    it.ItemID,
				CompanyID: req.CompanyID,
				Type:      model.TransactionTypeOutbound,
				Amount:    it.Amount,
				Cost:      float64(it.Amount) * item.Price,
				Date:      now,
			}
			if req.ClientID > 0 {
				clientID := req.ClientID
				tx.ClientID = &clientID
			}
			if req.TechnicianID > 0 {
				technicianID := req.TechnicianID
				tx.TechnicianID = &technicianID
			}

			id, err := r.Transactions().Create(ctx, tx)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}
	return ids, nil
}
